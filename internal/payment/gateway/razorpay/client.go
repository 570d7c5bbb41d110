// Package razorpay wraps the official Razorpay SDK for order and payment lookups.
package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	razorpaysdk "github.com/razorpay/razorpay-go"
	"github.com/smallbiznis/nftcheckout/internal/config"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"go.uber.org/zap"
)

// sdk is the subset of the Razorpay SDK the client uses.
type sdk interface {
	createOrder(data map[string]any) (map[string]any, error)
	fetchOrder(id string) (map[string]any, error)
	fetchPayment(id string) (map[string]any, error)
}

type sdkClient struct {
	client *razorpaysdk.Client
}

func (s sdkClient) createOrder(data map[string]any) (map[string]any, error) {
	return s.client.Order.Create(data, nil)
}

func (s sdkClient) fetchOrder(id string) (map[string]any, error) {
	return s.client.Order.Fetch(id, nil, nil)
}

func (s sdkClient) fetchPayment(id string) (map[string]any, error) {
	return s.client.Payment.Fetch(id, nil, nil)
}

type Client struct {
	keyID      string
	configured bool
	api        sdk
	log        *zap.Logger
}

func NewClient(cfg config.RazorpayConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		keyID:      cfg.KeyID,
		configured: cfg.KeyID != "" && cfg.KeySecret != "",
		api:        sdkClient{client: razorpaysdk.NewClient(cfg.KeyID, cfg.KeySecret)},
		log:        log.Named("razorpay.client"),
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.configured
}

// KeyID is the public key the storefront needs to open checkout.
func (c *Client) KeyID() string {
	return c.keyID
}

type CreateOrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	notes := map[string]any{}
	for key, value := range req.Notes {
		notes[key] = value
	}
	body, err := c.api.createOrder(map[string]any{
		"amount":          req.AmountMinor,
		"currency":        strings.ToUpper(req.Currency),
		"receipt":         req.Receipt,
		"notes":           notes,
		"payment_capture": 1,
	})
	if err != nil {
		return nil, c.wrap("create order", err)
	}

	order := &Order{
		ID:       readString(body, "id"),
		Amount:   readInt(body, "amount"),
		Currency: readString(body, "currency"),
		Receipt:  readString(body, "receipt"),
		Status:   readString(body, "status"),
	}
	if order.ID == "" {
		return nil, fmt.Errorf("razorpay create order: missing id: %w", paymentdomain.ErrGatewayRejected)
	}
	return order, nil
}

func (c *Client) FetchPayment(ctx context.Context, paymentID string) (map[string]any, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	body, err := c.api.fetchPayment(paymentID)
	if err != nil {
		return nil, c.wrap("fetch payment", err)
	}
	return body, nil
}

func (c *Client) FetchOrder(ctx context.Context, orderID string) (map[string]any, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	body, err := c.api.fetchOrder(orderID)
	if err != nil {
		return nil, c.wrap("fetch order", err)
	}
	return body, nil
}

func (c *Client) ready(ctx context.Context) error {
	if !c.Configured() {
		return fmt.Errorf("razorpay credentials missing: %w", paymentdomain.ErrInvalidConfig)
	}
	return ctx.Err()
}

func (c *Client) wrap(op string, err error) error {
	c.log.Warn("razorpay api error", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("razorpay %s: %w", op, errors.Join(paymentdomain.ErrGatewayUnavailable, err))
}

func readString(body map[string]any, key string) string {
	value, _ := body[key].(string)
	return value
}

func readInt(body map[string]any, key string) int64 {
	switch cast := body[key].(type) {
	case float64:
		return int64(cast)
	case int64:
		return cast
	case int:
		return int64(cast)
	}
	return 0
}
