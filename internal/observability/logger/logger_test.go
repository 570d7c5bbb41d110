package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/nftcheckout/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRequestAndActor(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "gateway", "razorpay")

	WithGateway(WithContext(ctx, base), "razorpay", " pay_1 ").Info("settled")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "gateway", fields["actor_type"])
	assert.Equal(t, "pay_1", fields["gateway_txn_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextLeavesBareContextAlone(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}
