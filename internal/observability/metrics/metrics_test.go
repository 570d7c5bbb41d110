package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("gateway", "razorpay"),
		attribute.String("buyer_email", "a@b.com"),
		attribute.String("gateway_txn_id", "pay_123"),
		attribute.String("outcome", "fresh"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key != "gateway" && attr.Key != "outcome" {
			t.Fatalf("unexpected attribute %q retained", attr.Key)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordPaymentEvent(context.Background(), "paypal", "captured")
	m.RecordLedgerTransition(context.Background(), "paypal", "complete", true)
	m.RecordDeliveryAttempt(context.Background(), "delivered")
}
