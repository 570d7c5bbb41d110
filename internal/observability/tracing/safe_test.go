package tracing

import (
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPII(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("gateway", "razorpay"),
		attribute.String("buyer.email", "a@b.com"),
		attribute.String("x_razorpay_signature", "abc"),
	)
	if len(attrs) != 1 || attrs[0].Key != "gateway" {
		t.Fatalf("expected only gateway attribute, got %v", attrs)
	}
}

func TestSafeErrorKeepsOuterMessage(t *testing.T) {
	err := fmt.Errorf("persistence failure: %w", errors.New("insert a@b.com failed"))
	if got := SafeError(err).Error(); got != "persistence failure" {
		t.Fatalf("unexpected message %q", got)
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
