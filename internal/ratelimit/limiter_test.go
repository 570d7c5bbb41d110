package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(1, 3)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		res, err := l.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Second)

	other, err := l.Allow(context.Background(), "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are limited independently")

	now = now.Add(time.Second)
	res, err = l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "bucket refills over time")
}

func TestBucketResult(t *testing.T) {
	res := bucketResult(false, 0.5, 2, 10)
	assert.False(t, res.Allowed)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)
	assert.Equal(t, 0, res.Remaining)

	res = bucketResult(true, 4.9, 2, 10)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Zero(t, res.RetryAfter)
}

func TestScriptReplyParsing(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(0), toInt(nil))
	assert.InDelta(t, 2.75, toFloat("2.75"), 1e-9)
	assert.InDelta(t, 3.0, toFloat(int64(3)), 1e-9)
	assert.Zero(t, toFloat("not-a-number"))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 40*time.Second, bucketTTL(1, 20))
	assert.Equal(t, time.Second, bucketTTL(1000, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 0))
}

func TestNilLocker(t *testing.T) {
	var l *Locker
	_, ok, err := l.TryLock(context.Background(), "deliver_pending", time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, l.Release(context.Background(), "deliver_pending", "token"))
	assert.Nil(t, NewLocker(nil))
}
