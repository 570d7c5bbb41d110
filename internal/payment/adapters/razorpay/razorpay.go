package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/smallbiznis/nftcheckout/internal/payment/signature"
)

const SignatureHeader = "X-Razorpay-Signature"

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// Note keys written at order creation and echoed back on payments.
const (
	NoteUserEmail = "user_email"
	NoteUserName  = "user_name"
	NoteUserPhone = "user_phone"
	NoteNFTID     = "nft_id"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Gateway() paymentdomain.Gateway {
	return paymentdomain.GatewayRazorpay
}

// NewAdapter accepts an empty secret; Verify then rejects every delivery.
func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Adapter, error) {
	secret, _ := readString(cfg.Config, "webhook_secret")
	return &Adapter{webhookSecret: strings.TrimSpace(secret)}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Gateway() paymentdomain.Gateway {
	return paymentdomain.GatewayRazorpay
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return signature.VerifyHMACSHA256(payload, a.webhookSecret, headers.Get(SignatureHeader))
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrMalformedPayload
	}

	var kind paymentdomain.Kind
	switch strings.TrimSpace(event.Event) {
	case EventPaymentCaptured, EventOrderPaid:
		kind = paymentdomain.KindCaptured
	case EventPaymentFailed:
		kind = paymentdomain.KindFailed
	case "":
		return nil, paymentdomain.ErrMalformedPayload
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	if event.Payload.Payment == nil {
		return nil, paymentdomain.ErrMalformedPayload
	}
	payment := event.Payload.Payment.Entity
	var orderNotes map[string]any
	if event.Payload.Order != nil {
		orderNotes = parseNotes(event.Payload.Order.Entity.Notes)
	}

	parsed, err := buildEvent(payment, orderNotes, kind, payload)
	if err != nil {
		return nil, err
	}
	parsed.EventType = event.Event
	parsed.OccurredAt = timestamp(payment.CapturedAt, payment.CreatedAt, event.CreatedAt)
	return parsed, nil
}

// NormalizePayment maps a payment fetched from the Razorpay API. order may be
// nil; when present its notes back up missing payment notes.
func NormalizePayment(payment map[string]any, order map[string]any) (*paymentdomain.PaymentEvent, error) {
	raw, err := json.Marshal(payment)
	if err != nil {
		return nil, paymentdomain.ErrMalformedPayload
	}
	var entity paymentEntity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return nil, paymentdomain.ErrMalformedPayload
	}

	var orderNotes map[string]any
	if order != nil {
		if notes, ok := order["notes"].(map[string]any); ok {
			orderNotes = notes
		}
	}

	var kind paymentdomain.Kind
	switch strings.ToLower(strings.TrimSpace(entity.Status)) {
	case "captured":
		kind = paymentdomain.KindCaptured
	case "failed":
		kind = paymentdomain.KindFailed
	case "created", "authorized":
		kind = paymentdomain.KindPending
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	event, err := buildEvent(entity, orderNotes, kind, raw)
	if err != nil {
		return nil, err
	}
	event.EventType = "payment." + strings.ToLower(strings.TrimSpace(entity.Status))
	event.OccurredAt = timestamp(entity.CapturedAt, entity.CreatedAt, 0)
	return event, nil
}

type webhookEvent struct {
	Event     string         `json:"event"`
	CreatedAt int64          `json:"created_at"`
	Payload   webhookPayload `json:"payload"`
}

type webhookPayload struct {
	Payment *struct {
		Entity paymentEntity `json:"entity"`
	} `json:"payment"`
	Order *struct {
		Entity orderEntity `json:"entity"`
	} `json:"order"`
}

type paymentEntity struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Method           string          `json:"method"`
	Bank             string          `json:"bank"`
	Wallet           string          `json:"wallet"`
	VPA              string          `json:"vpa"`
	Email            string          `json:"email"`
	Contact          string          `json:"contact"`
	Notes            json.RawMessage `json:"notes"`
	ErrorCode        string          `json:"error_code"`
	ErrorDescription string          `json:"error_description"`
	ErrorReason      string          `json:"error_reason"`
	CreatedAt        int64           `json:"created_at"`
	CapturedAt       int64           `json:"captured_at"`
}

type orderEntity struct {
	ID    string          `json:"id"`
	Notes json.RawMessage `json:"notes"`
}

func buildEvent(payment paymentEntity, orderNotes map[string]any, kind paymentdomain.Kind, payload []byte) (*paymentdomain.PaymentEvent, error) {
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return nil, paymentdomain.ErrMalformedPayload
	}
	currency := strings.ToUpper(strings.TrimSpace(payment.Currency))
	if currency == "" {
		return nil, paymentdomain.ErrMalformedPayload
	}

	notes := parseNotes(payment.Notes)
	note := func(key string) string {
		if value := readMetadataValue(notes, key); value != "" {
			return value
		}
		return readMetadataValue(orderNotes, key)
	}

	buyer := paymentdomain.Buyer{
		Email: note(NoteUserEmail),
		Name:  note(NoteUserName),
		Phone: note(NoteUserPhone),
	}.Merge(paymentdomain.Buyer{
		Email: strings.TrimSpace(payment.Email),
		Phone: strings.TrimSpace(payment.Contact),
	})

	return &paymentdomain.PaymentEvent{
		Gateway:        paymentdomain.GatewayRazorpay,
		Kind:           kind,
		GatewayTxnID:   paymentID,
		GatewayOrderID: strings.TrimSpace(payment.OrderID),
		Amount:         decimal.New(payment.Amount, -2),
		Currency:       currency,
		RawStatus:      strings.TrimSpace(payment.Status),
		AssetID:        note(NoteNFTID),
		Buyer:          buyer,
		RawPayload:     payload,
		Details: paymentdomain.RazorpayDetails{
			Method:           payment.Method,
			Bank:             payment.Bank,
			Wallet:           payment.Wallet,
			VPA:              payment.VPA,
			ErrorCode:        payment.ErrorCode,
			ErrorDescription: payment.ErrorDescription,
			ErrorReason:      payment.ErrorReason,
		},
	}, nil
}

// parseNotes tolerates Razorpay sending an empty JSON array instead of an object.
func parseNotes(raw json.RawMessage) map[string]any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	notes := map[string]any{}
	if err := json.Unmarshal(raw, &notes); err != nil {
		return nil
	}
	return notes
}

func timestamp(values ...int64) time.Time {
	for _, value := range values {
		if value > 0 {
			return time.Unix(value, 0).UTC()
		}
	}
	return time.Now().UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatFloat(cast, 'f', -1, 64)
	case json.Number:
		return cast.String()
	}
	return ""
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	cast, ok := value.(string)
	return cast, ok
}
