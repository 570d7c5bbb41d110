package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	paypalapi "github.com/smallbiznis/nftcheckout/internal/payment/gateway/paypal"
)

const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventOrderCompleted   = "CHECKOUT.ORDER.COMPLETED"
)

const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
	HeaderCertURL          = "Paypal-Cert-Url"
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
)

// WebhookVerifier asks PayPal to validate a transmission signature.
type WebhookVerifier interface {
	VerifyWebhookSignature(ctx context.Context, req paypalapi.VerifyWebhookRequest) (bool, error)
}

type Factory struct {
	verifier WebhookVerifier
}

func NewFactory(verifier WebhookVerifier) *Factory {
	return &Factory{verifier: verifier}
}

func (f *Factory) Gateway() paymentdomain.Gateway {
	return paymentdomain.GatewayPayPal
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Adapter, error) {
	webhookID, _ := readString(cfg.Config, "webhook_id")
	return &Adapter{
		webhookID: strings.TrimSpace(webhookID),
		verifier:  f.verifier,
	}, nil
}

type Adapter struct {
	webhookID string
	verifier  WebhookVerifier
}

func (a *Adapter) Gateway() paymentdomain.Gateway {
	return paymentdomain.GatewayPayPal
}

// Verify checks the envelope shape, then the transmission signature through
// the PayPal API. Missing headers or configuration fail closed.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	var envelope webhookEvent
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return paymentdomain.ErrMalformedPayload
	}
	if strings.TrimSpace(envelope.EventType) == "" || len(envelope.Resource) == 0 || string(envelope.Resource) == "null" {
		return paymentdomain.ErrMalformedPayload
	}

	if a.webhookID == "" || a.verifier == nil {
		return paymentdomain.ErrInvalidSignature
	}
	req := paypalapi.VerifyWebhookRequest{
		AuthAlgo:         strings.TrimSpace(headers.Get(HeaderAuthAlgo)),
		CertURL:          strings.TrimSpace(headers.Get(HeaderCertURL)),
		TransmissionID:   strings.TrimSpace(headers.Get(HeaderTransmissionID)),
		TransmissionSig:  strings.TrimSpace(headers.Get(HeaderTransmissionSig)),
		TransmissionTime: strings.TrimSpace(headers.Get(HeaderTransmissionTime)),
		WebhookID:        a.webhookID,
		WebhookEvent:     json.RawMessage(payload),
	}
	if req.AuthAlgo == "" || req.CertURL == "" || req.TransmissionID == "" || req.TransmissionSig == "" || req.TransmissionTime == "" {
		return paymentdomain.ErrInvalidSignature
	}

	ok, err := a.verifier.VerifyWebhookSignature(ctx, req)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", paymentdomain.ErrInvalidSignature, err)
	}
	if !ok {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrMalformedPayload
	}
	if len(event.Resource) == 0 {
		return nil, paymentdomain.ErrMalformedPayload
	}

	var parsed *paymentdomain.PaymentEvent
	var err error
	switch strings.TrimSpace(event.EventType) {
	case EventCaptureCompleted, EventCaptureDenied:
		parsed, err = parseCaptureResource(event.Resource)
	case EventOrderCompleted:
		parsed, err = NormalizeOrder(event.Resource)
	case "":
		return nil, paymentdomain.ErrMalformedPayload
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
	if err != nil {
		return nil, err
	}

	parsed.EventType = event.EventType
	parsed.RawPayload = payload
	if parsed.OccurredAt.IsZero() {
		parsed.OccurredAt = parseTime(event.CreateTime)
	}
	return parsed, nil
}

// NormalizeOrder maps an order document, either a webhook resource or a
// capture/get API response, using its first purchase unit and capture.
func NormalizeOrder(raw []byte) (*paymentdomain.PaymentEvent, error) {
	var order orderResource
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, paymentdomain.ErrMalformedPayload
	}
	if strings.TrimSpace(order.ID) == "" || len(order.PurchaseUnits) == 0 {
		return nil, paymentdomain.ErrMalformedPayload
	}
	unit := order.PurchaseUnits[0]
	if len(unit.Payments.Captures) == 0 {
		return nil, paymentdomain.ErrMalformedPayload
	}
	capture := unit.Payments.Captures[0]
	if capture.CustomID == "" {
		capture.CustomID = unit.CustomID
	}
	if capture.Amount.Value == "" {
		capture.Amount = unit.Amount
	}

	event, err := buildEvent(capture, order.ID)
	if err != nil {
		return nil, err
	}
	details := event.Details.(paymentdomain.PayPalDetails)
	details.PayerID = order.Payer.PayerID
	details.PayerEmail = order.Payer.EmailAddress
	event.Details = details
	event.RawPayload = raw
	event.EventType = "order." + strings.ToLower(order.Status)
	return event, nil
}

type webhookEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime string          `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type captureResource struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        money  `json:"amount"`
	CustomID      string `json:"custom_id"`
	CreateTime    string `json:"create_time"`
	UpdateTime    string `json:"update_time"`
	StatusDetails struct {
		Reason string `json:"reason"`
	} `json:"status_details"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

type orderResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		PayerID      string `json:"payer_id"`
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Amount   money  `json:"amount"`
		Payments struct {
			Captures []captureResource `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func parseCaptureResource(raw json.RawMessage) (*paymentdomain.PaymentEvent, error) {
	var capture captureResource
	if err := json.Unmarshal(raw, &capture); err != nil {
		return nil, paymentdomain.ErrMalformedPayload
	}
	return buildEvent(capture, capture.SupplementaryData.RelatedIDs.OrderID)
}

func buildEvent(capture captureResource, orderID string) (*paymentdomain.PaymentEvent, error) {
	captureID := strings.TrimSpace(capture.ID)
	if captureID == "" {
		return nil, paymentdomain.ErrMalformedPayload
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(capture.Amount.Value))
	if err != nil {
		return nil, paymentdomain.ErrMalformedPayload
	}
	currency := strings.ToUpper(strings.TrimSpace(capture.Amount.CurrencyCode))
	if currency == "" {
		return nil, paymentdomain.ErrMalformedPayload
	}

	var kind paymentdomain.Kind
	switch strings.ToUpper(strings.TrimSpace(capture.Status)) {
	case "COMPLETED":
		kind = paymentdomain.KindCaptured
	case "DECLINED", "FAILED", "DENIED":
		kind = paymentdomain.KindFailed
	case "PENDING":
		kind = paymentdomain.KindPending
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	occurredAt := parseTime(capture.UpdateTime)
	if occurredAt.IsZero() {
		occurredAt = parseTime(capture.CreateTime)
	}

	return &paymentdomain.PaymentEvent{
		Gateway:        paymentdomain.GatewayPayPal,
		Kind:           kind,
		GatewayTxnID:   captureID,
		GatewayOrderID: strings.TrimSpace(orderID),
		Amount:         amount,
		Currency:       currency,
		RawStatus:      capture.Status,
		OccurredAt:     occurredAt,
		AssetID:        strings.TrimSpace(capture.CustomID),
		Details: paymentdomain.PayPalDetails{
			CaptureStatus: capture.Status,
			DenialReason:  capture.StatusDetails.Reason,
		},
	}, nil
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	cast, ok := value.(string)
	return cast, ok
}
