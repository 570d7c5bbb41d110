package domain

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway identifies a payment gateway namespace.
type Gateway string

const (
	GatewayPayPal   Gateway = "paypal"
	GatewayRazorpay Gateway = "razorpay"
)

// ParseGateway normalizes a route or config value into a known gateway.
func ParseGateway(value string) (Gateway, error) {
	switch Gateway(strings.ToLower(strings.TrimSpace(value))) {
	case GatewayPayPal:
		return GatewayPayPal, nil
	case GatewayRazorpay:
		return GatewayRazorpay, nil
	default:
		return "", ErrUnknownGateway
	}
}

func (g Gateway) String() string { return string(g) }

// Kind is the normalized outcome a gateway reported.
type Kind string

const (
	KindCaptured Kind = "captured"
	KindFailed   Kind = "failed"
	KindPending  Kind = "pending"
)

// Buyer carries whatever buyer identity a gateway payload or checkout form exposed.
type Buyer struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	WalletAddress string `json:"walletAddress"`
}

// Merge fills empty fields of b from fallback.
func (b Buyer) Merge(fallback Buyer) Buyer {
	if strings.TrimSpace(b.Email) == "" {
		b.Email = fallback.Email
	}
	if strings.TrimSpace(b.Name) == "" {
		b.Name = fallback.Name
	}
	if strings.TrimSpace(b.Phone) == "" {
		b.Phone = fallback.Phone
	}
	if strings.TrimSpace(b.Address) == "" {
		b.Address = fallback.Address
	}
	if strings.TrimSpace(b.WalletAddress) == "" {
		b.WalletAddress = fallback.WalletAddress
	}
	return b
}

func (b Buyer) HasEmail() bool {
	return strings.TrimSpace(b.Email) != ""
}

// PaymentEvent is the gateway-neutral view of a payment notification or
// redirect confirmation. Details holds the gateway-specific variant.
type PaymentEvent struct {
	Gateway        Gateway
	Kind           Kind
	EventType      string
	GatewayTxnID   string
	GatewayOrderID string
	Amount         decimal.Decimal
	Currency       string
	RawStatus      string
	OccurredAt     time.Time
	AssetID        string
	Buyer          Buyer
	RawPayload     []byte
	Details        Details
}

// Details is implemented only by the gateway variants in this package.
type Details interface {
	gateway() Gateway
}

type RazorpayDetails struct {
	Method           string `json:"method,omitempty"`
	Bank             string `json:"bank,omitempty"`
	Wallet           string `json:"wallet,omitempty"`
	VPA              string `json:"vpa,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorReason      string `json:"error_reason,omitempty"`
}

func (RazorpayDetails) gateway() Gateway { return GatewayRazorpay }

type PayPalDetails struct {
	CaptureStatus string `json:"capture_status,omitempty"`
	PayerID       string `json:"payer_id,omitempty"`
	PayerEmail    string `json:"payer_email,omitempty"`
	DenialReason  string `json:"denial_reason,omitempty"`
}

func (PayPalDetails) gateway() Gateway { return GatewayPayPal }

// Adapter verifies and normalizes webhook deliveries for one gateway.
type Adapter interface {
	Gateway() Gateway
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// AdapterConfig carries the per-gateway settings an adapter needs.
type AdapterConfig struct {
	Config map[string]any
}

type AdapterFactory interface {
	Gateway() Gateway
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}
