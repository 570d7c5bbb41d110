package session

import (
	"context"
	"errors"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nftcheckout/internal/auth/domain"
	"github.com/smallbiznis/nftcheckout/internal/clock"
)

const revokedKeyPrefix = "nftcheckout:session:revoked:"

// NewRevocationStore shares revocations through redis when available so a
// logout is honoured by every instance.
func NewRevocationStore(client *redis.Client, clk clock.Clock) domain.RevocationStore {
	if client != nil {
		return &redisRevocations{client: client, clock: clk}
	}
	return NewMemoryRevocations(clk)
}

type redisRevocations struct {
	client *redis.Client
	clock  clock.Clock
}

func (r *redisRevocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(r.clock.Now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err()
}

func (r *redisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := r.client.Get(ctx, revokedKeyPrefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type MemoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	clock   clock.Clock
}

func NewMemoryRevocations(clk clock.Clock) *MemoryRevocations {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &MemoryRevocations{revoked: make(map[string]time.Time), clock: clk}
}

func (m *MemoryRevocations) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for id, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, id)
		}
	}
	if until.After(now) {
		m.revoked[tokenID] = until
	}
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.revoked[tokenID]
	return ok && exp.After(m.clock.Now()), nil
}
