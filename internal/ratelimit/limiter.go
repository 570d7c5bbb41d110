package ratelimit

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nftcheckout/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const keyPrefix = "nftcheckout:ratelimit:"

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// NewLimiter picks the shared redis bucket when redis is configured and a
// per-process limiter otherwise. It returns nil when limiting is disabled.
func NewLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) Limiter {
	if !cfg.RateLimit.Enabled() {
		log.Named("ratelimit").Info("rate limiting disabled")
		return nil
	}
	if client != nil {
		return &redisLimiter{
			bucket: NewTokenBucket(client),
			rate:   cfg.RateLimit.Rate,
			burst:  cfg.RateLimit.Burst,
		}
	}
	return NewMemoryLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst)
}

type redisLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	return l.bucket.Allow(ctx, keyPrefix+key, l.rate, l.burst)
}

const (
	memoryIdleTTL   = 10 * time.Minute
	memoryPruneSize = 10000
)

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one x/time/rate limiter per key.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	rate    rate.Limit
	burst   int
	now     func() time.Time
}

func NewMemoryLimiter(perSecond float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*memoryEntry),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now()
	lim := l.limiterFor(key, now)

	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)
	return bucketResult(allowed, tokens, float64(l.rate), l.burst), nil
}

func (l *MemoryLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.entries[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	if len(l.entries) >= memoryPruneSize {
		for k, entry := range l.entries {
			if now.Sub(entry.lastSeen) > memoryIdleTTL {
				delete(l.entries, k)
			}
		}
	}
	entry := &memoryEntry{limiter: rate.NewLimiter(l.rate, l.burst), lastSeen: now}
	l.entries[key] = entry
	return entry.limiter
}
