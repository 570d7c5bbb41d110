package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		handler(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return newClient(srv.URL, "client", "secret", zap.NewNop())
}

func TestCreateOrder(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/orders", r.URL.Path)
		assert.Equal(t, "req-1", r.Header.Get("PayPal-Request-Id"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body["intent"])
		unit := body["purchase_units"].([]any)[0].(map[string]any)
		assert.Equal(t, "nft-9", unit["custom_id"])
		assert.Equal(t, "99.00", unit["amount"].(map[string]any)["value"])

		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED","links":[{"href":"https://paypal.test/approve","rel":"approve","method":"GET"}]}`))
	})

	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		RequestID: "req-1",
		AssetID:   "nft-9",
		Amount:    decimal.RequireFromString("99"),
		Currency:  "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", order.ID)
	assert.Equal(t, "https://paypal.test/approve", order.ApproveURL())
}

func TestCaptureOrderAlreadyCaptured(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}],"debug_id":"d1"}`))
	})

	_, err := client.CaptureOrder(context.Background(), "ORDER-1")
	assert.ErrorIs(t, err, ErrAlreadyCaptured)
}

func TestAPIErrorClassification(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.GetOrder(context.Background(), "ORDER-1")
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayUnavailable)
}

func TestVerifyWebhookSignature(t *testing.T) {
	status := "SUCCESS"
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req VerifyWebhookRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "WH-1", req.WebhookID)
		assert.JSONEq(t, `{"id":"WH-EVT"}`, string(req.WebhookEvent))
		_, _ = w.Write([]byte(`{"verification_status":"` + status + `"}`))
	})

	req := VerifyWebhookRequest{WebhookID: "WH-1", WebhookEvent: json.RawMessage(`{"id":"WH-EVT"}`)}
	ok, err := client.VerifyWebhookSignature(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ok)

	status = "FAILURE"
	ok, err = client.VerifyWebhookSignature(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnconfiguredClient(t *testing.T) {
	client := newClient("http://127.0.0.1:0", "", "", nil)
	assert.False(t, client.Configured())
	_, err := client.GetOrder(context.Background(), "X")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}
