package domain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nftcheckout/internal/catalog"
	deliverydomain "github.com/smallbiznis/nftcheckout/internal/delivery/domain"
	ledgerdomain "github.com/smallbiznis/nftcheckout/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	paypalapi "github.com/smallbiznis/nftcheckout/internal/payment/gateway/paypal"
	razorpayapi "github.com/smallbiznis/nftcheckout/internal/payment/gateway/razorpay"
)

// BuyerStatus is the only payment state buyers ever see.
type BuyerStatus string

const (
	BuyerStatusProcessing BuyerStatus = "processing"
	BuyerStatusSuccessful BuyerStatus = "successful"
	BuyerStatusFailed     BuyerStatus = "failed"
)

func BuyerStatusOf(status ledgerdomain.Status) BuyerStatus {
	switch status {
	case ledgerdomain.StatusComplete:
		return BuyerStatusSuccessful
	case ledgerdomain.StatusFailed:
		return BuyerStatusFailed
	default:
		return BuyerStatusProcessing
	}
}

type CreateOrderRequest struct {
	AssetID  string
	Title    string
	Amount   decimal.Decimal
	Currency string
	Buyer    paymentdomain.Buyer
}

type PayPalOrder struct {
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
	ApproveURL string `json:"approveUrl,omitempty"`
}

type RazorpayOrder struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
	Receipt  string `json:"receipt"`
}

type ConfirmRazorpayRequest struct {
	OrderID   string
	PaymentID string
	Signature string
	Buyer     paymentdomain.Buyer
}

type CapturePayPalRequest struct {
	OrderID string
	Buyer   paymentdomain.Buyer
}

// SettleResult describes what one settle call did.
type SettleResult struct {
	Gateway        paymentdomain.Gateway `json:"gateway"`
	GatewayTxnID   string                `json:"transactionId"`
	Status         BuyerStatus           `json:"status"`
	Fresh          bool                  `json:"-"`
	DeliveryQueued bool                  `json:"-"`
	// DeliveryPending is true while the asset for a completed payment is owed.
	DeliveryPending bool `json:"deliveryPending"`
}

type StatusResult struct {
	Status   BuyerStatus `json:"status"`
	Delivery string      `json:"delivery,omitempty"`
}

// PayPalGateway is the subset of the PayPal REST client the orchestrator uses.
type PayPalGateway interface {
	Configured() bool
	CreateOrder(ctx context.Context, req paypalapi.CreateOrderRequest) (*paypalapi.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (json.RawMessage, error)
	GetOrder(ctx context.Context, orderID string) (json.RawMessage, error)
}

type RazorpayGateway interface {
	Configured() bool
	KeyID() string
	CreateOrder(ctx context.Context, req razorpayapi.CreateOrderRequest) (*razorpayapi.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (map[string]any, error)
	FetchOrder(ctx context.Context, orderID string) (map[string]any, error)
}

type Catalog interface {
	Configured() bool
	GetListing(ctx context.Context, id string) (catalog.Listing, error)
}

type Service interface {
	HandleWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) (SettleResult, error)
	ConfirmRazorpay(ctx context.Context, req ConfirmRazorpayRequest) (SettleResult, error)
	CapturePayPal(ctx context.Context, req CapturePayPalRequest) (SettleResult, error)
	CreatePayPalOrder(ctx context.Context, req CreateOrderRequest) (PayPalOrder, error)
	CreateRazorpayOrder(ctx context.Context, req CreateOrderRequest) (RazorpayOrder, error)
	TransactionStatus(ctx context.Context, gateway, gatewayTxnID string) (StatusResult, error)
	Reconcile(ctx context.Context, gateway, gatewayTxnID string) (SettleResult, error)
	ExpireIntents(ctx context.Context) (int64, error)
}

// DeliveryStatusLabel folds delivery states into what a buyer may see.
func DeliveryStatusLabel(status deliverydomain.Status) string {
	if status == deliverydomain.StatusDelivered {
		return "delivered"
	}
	return "pending"
}

var (
	ErrInvalidAsset    = errors.New("invalid_asset_id")
	ErrInvalidEmail    = errors.New("invalid_buyer_email")
	ErrInvalidName     = errors.New("invalid_buyer_name")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidOrder    = errors.New("invalid_order_id")
	ErrInvalidPayment  = errors.New("invalid_payment_id")
	ErrPersistence     = errors.New("checkout_persistence_failure")
)
