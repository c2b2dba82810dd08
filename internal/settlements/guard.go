package settlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/cred30-backend/pkg/redis"
)

// IdempotencyGuard drops gateway retries before they reach the database.
// The database checks in HandleCallback remain the source of truth.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark reports whether externalID was already seen and marks it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, externalID string) (bool, error) {
	if externalID == "" {
		return false, errors.New("external id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, externalID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete forgets externalID so a failed callback can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, externalID string) error {
	if externalID == "" {
		return errors.New("external id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, externalID))
}
