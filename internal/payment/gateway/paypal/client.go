// Package paypal is a thin client for the PayPal Orders and Notifications REST APIs.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nftcheckout/internal/config"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTimeout = 20 * time.Second

// ErrAlreadyCaptured is returned when PayPal reports the order was captured before.
var ErrAlreadyCaptured = errors.New("paypal_order_already_captured")

type Client struct {
	baseURL    string
	configured bool
	http       *http.Client
	log        *zap.Logger
}

// NewClient builds an OAuth2 client-credentials client against the configured environment.
func NewClient(cfg config.PayPalConfig, log *zap.Logger) *Client {
	return newClient(cfg.BaseURL(), cfg.ClientID, cfg.ClientSecret, log)
}

func newClient(baseURL, clientID, clientSecret string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	transport := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   defaultTimeout,
	}
	creds := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, transport)
	httpClient := creds.Client(ctx)
	httpClient.Timeout = defaultTimeout

	return &Client{
		baseURL:    baseURL,
		configured: strings.TrimSpace(clientID) != "" && strings.TrimSpace(clientSecret) != "",
		http:       httpClient,
		log:        log.Named("paypal.client"),
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.configured
}

type CreateOrderRequest struct {
	RequestID   string
	AssetID     string
	Description string
	Amount      decimal.Decimal
	Currency    string
	ReturnURL   string
	CancelURL   string
}

type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

// ApproveURL returns the buyer approval link of a freshly created order.
func (o Order) ApproveURL() string {
	for _, link := range o.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.AssetID,
			"custom_id":    req.AssetID,
			"description":  req.Description,
			"amount": map[string]any{
				"currency_code": strings.ToUpper(req.Currency),
				"value":         req.Amount.StringFixed(2),
			},
		}},
		"application_context": map[string]any{
			"return_url":          req.ReturnURL,
			"cancel_url":          req.CancelURL,
			"user_action":         "PAY_NOW",
			"shipping_preference": "NO_SHIPPING",
		},
	}
	headers := map[string]string{}
	if req.RequestID != "" {
		headers["PayPal-Request-Id"] = req.RequestID
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, headers, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CaptureOrder captures an approved order and returns the raw order document.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", map[string]any{}, map[string]string{
		"Prefer":            "return=representation",
		"PayPal-Request-Id": "capture-" + orderID,
	}, &raw)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.HasIssue("ORDER_ALREADY_CAPTURED") {
			return nil, ErrAlreadyCaptured
		}
		return nil, err
	}
	return raw, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type VerifyWebhookRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

// VerifyWebhookSignature asks PayPal whether the transmission signature is genuine.
func (c *Client) VerifyWebhookSignature(ctx context.Context, req VerifyWebhookRequest) (bool, error) {
	var resp struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", req, nil, &resp); err != nil {
		return false, err
	}
	return strings.EqualFold(resp.VerificationStatus, "SUCCESS"), nil
}

// APIError is the PayPal error envelope.
type APIError struct {
	StatusCode int    `json:"-"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	DebugID    string `json:"debug_id"`
	Details    []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal: %d %s: %s (debug_id=%s)", e.StatusCode, e.Name, e.Message, e.DebugID)
}

func (e *APIError) HasIssue(issue string) bool {
	for _, detail := range e.Details {
		if detail.Issue == issue {
			return true
		}
	}
	return false
}

func (e *APIError) Unwrap() error {
	if e.StatusCode >= 500 {
		return paymentdomain.ErrGatewayUnavailable
	}
	return paymentdomain.ErrGatewayRejected
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	if !c.Configured() {
		return fmt.Errorf("paypal credentials missing: %w", paymentdomain.ErrInvalidConfig)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("paypal request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("paypal %s %s: %w", method, path, errors.Join(paymentdomain.ErrGatewayUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paypal read body: %w", errors.Join(paymentdomain.ErrGatewayUnavailable, err))
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		c.log.Warn("paypal api error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("name", apiErr.Name),
			zap.String("debug_id", apiErr.DebugID),
		)
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if rawOut, ok := out.(*json.RawMessage); ok {
		*rawOut = append((*rawOut)[:0], raw...)
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("paypal decode %s: %w", path, err)
	}
	return nil
}
