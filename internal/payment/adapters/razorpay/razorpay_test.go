package razorpay

import (
	"context"
	"net/http"
	"testing"

	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/smallbiznis/nftcheckout/internal/payment/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const capturedPayload = `{
  "event": "payment.captured",
  "created_at": 1700000100,
  "payload": {
    "payment": {
      "entity": {
        "id": "pay_R1",
        "order_id": "order_R1",
        "amount": 4900,
        "currency": "inr",
        "status": "captured",
        "method": "upi",
        "vpa": "buyer@upi",
        "email": "gateway@example.com",
        "notes": {"user_email": "buyer@example.com", "nft_id": "7", "user_name": "Asha"},
        "created_at": 1700000000
      }
    }
  }
}`

func TestVerify(t *testing.T) {
	payload := []byte(capturedPayload)
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Config: map[string]any{"webhook_secret": "whsec"},
	})
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set(SignatureHeader, signature.Sign(payload, "whsec"))
	require.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set(SignatureHeader, signature.Sign(payload, "wrong"))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	headers.Del(SignatureHeader)
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)
}

func TestVerifyWithoutSecretFailsClosed(t *testing.T) {
	payload := []byte(capturedPayload)
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{})
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set(SignatureHeader, signature.Sign(payload, ""))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)
}

func TestParseCaptured(t *testing.T) {
	adapter := &Adapter{}
	event, err := adapter.Parse(context.Background(), []byte(capturedPayload))
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.GatewayRazorpay, event.Gateway)
	assert.Equal(t, paymentdomain.KindCaptured, event.Kind)
	assert.Equal(t, "pay_R1", event.GatewayTxnID)
	assert.Equal(t, "order_R1", event.GatewayOrderID)
	assert.Equal(t, "49.00", event.Amount.StringFixed(2))
	assert.Equal(t, "INR", event.Currency)
	assert.Equal(t, "7", event.AssetID)
	assert.Equal(t, "buyer@example.com", event.Buyer.Email)
	assert.Equal(t, "Asha", event.Buyer.Name)
	assert.Equal(t, int64(1700000000), event.OccurredAt.Unix())

	details, ok := event.Details.(paymentdomain.RazorpayDetails)
	require.True(t, ok)
	assert.Equal(t, "upi", details.Method)
	assert.Equal(t, "buyer@upi", details.VPA)
}

func TestParseFailedCarriesErrorDetails(t *testing.T) {
	payload := `{"event":"payment.failed","payload":{"payment":{"entity":{
		"id":"pay_F1","order_id":"order_F1","amount":10000,"currency":"INR","status":"failed",
		"notes":[],"error_code":"BAD_REQUEST_ERROR","error_description":"declined","error_reason":"payment_failed"}}}}`

	event, err := (&Adapter{}).Parse(context.Background(), []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.KindFailed, event.Kind)
	assert.Equal(t, "100.00", event.Amount.StringFixed(2))
	assert.Empty(t, event.Buyer.Email)
	details := event.Details.(paymentdomain.RazorpayDetails)
	assert.Equal(t, "BAD_REQUEST_ERROR", details.ErrorCode)
	assert.Equal(t, "payment_failed", details.ErrorReason)
}

func TestParseOrderPaidFallsBackToOrderNotes(t *testing.T) {
	payload := `{"event":"order.paid","payload":{
		"payment":{"entity":{"id":"pay_O1","order_id":"order_O1","amount":250000,"currency":"INR","status":"captured","notes":[]}},
		"order":{"entity":{"id":"order_O1","notes":{"user_email":"order@example.com","nft_id":"12"}}}}}`

	event, err := (&Adapter{}).Parse(context.Background(), []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.KindCaptured, event.Kind)
	assert.Equal(t, "order.paid", event.EventType)
	assert.Equal(t, "order@example.com", event.Buyer.Email)
	assert.Equal(t, "12", event.AssetID)
	assert.Equal(t, "2500.00", event.Amount.StringFixed(2))
}

func TestParseRejectsAndIgnores(t *testing.T) {
	adapter := &Adapter{}

	_, err := adapter.Parse(context.Background(), []byte(`{not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrMalformedPayload)

	_, err = adapter.Parse(context.Background(), []byte(`{"event":"refund.created","payload":{}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	_, err = adapter.Parse(context.Background(), []byte(`{"event":"payment.captured","payload":{}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrMalformedPayload)

	_, err = adapter.Parse(context.Background(), []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"amount":100,"currency":"INR"}}}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrMalformedPayload)
}

func TestNormalizePayment(t *testing.T) {
	payment := map[string]any{
		"id":       "pay_N1",
		"order_id": "order_N1",
		"amount":   float64(4900),
		"currency": "INR",
		"status":   "captured",
		"notes":    []any{},
	}
	order := map[string]any{
		"id":    "order_N1",
		"notes": map[string]any{"nft_id": "3", "user_email": "n@example.com"},
	}

	event, err := NormalizePayment(payment, order)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.KindCaptured, event.Kind)
	assert.Equal(t, "49.00", event.Amount.StringFixed(2))
	assert.Equal(t, "3", event.AssetID)
	assert.Equal(t, "n@example.com", event.Buyer.Email)

	payment["status"] = "authorized"
	event, err = NormalizePayment(payment, nil)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.KindPending, event.Kind)

	payment["status"] = "refunded"
	_, err = NormalizePayment(payment, nil)
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestReadMetadataValueKeepsNumericNotes(t *testing.T) {
	notes := map[string]any{"whole": float64(42), "fraction": 42.5, "zero": float64(0), "text": " 7 "}

	assert.Equal(t, "42", readMetadataValue(notes, "whole"))
	assert.Equal(t, "42.5", readMetadataValue(notes, "fraction"))
	assert.Empty(t, readMetadataValue(notes, "zero"))
	assert.Equal(t, "7", readMetadataValue(notes, "text"))
	assert.Empty(t, readMetadataValue(notes, "missing"))
}
