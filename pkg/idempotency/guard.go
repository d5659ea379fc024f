package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/betza-storefront/pkg/redis"
)

// Guard serializes work per (scope, id) using Redis SETNX with a TTL.
// Keys follow the `betza:idempotency:<scope>:<id>` pattern.
type Guard struct {
	store redis.GuardStore
	ttl   time.Duration
}

// NewGuard builds a guard whose locks expire after ttl.
func NewGuard(store redis.GuardStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Acquire returns true when the caller now holds the guard for id, false when
// another caller already holds it.
func (g *Guard) Acquire(ctx context.Context, scope, id string) (bool, error) {
	key, err := g.key(scope, id)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, "1", g.ttl)
}

// Release drops the guard so a later attempt can retry.
func (g *Guard) Release(ctx context.Context, scope, id string) error {
	key, err := g.key(scope, id)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(scope, id string) (string, error) {
	if strings.TrimSpace(scope) == "" {
		return "", errors.New("scope is required")
	}
	if strings.TrimSpace(id) == "" {
		return "", errors.New("id is required")
	}
	return g.store.IdempotencyKey(scope, id), nil
}
