package cache

import (
	"context"
	"time"
)

// Cache is a read-through JSON cache for hot lookups: latest exchange
// rates and daily report aggregates. Misses are never errors.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Noop struct{}

func (Noop) GetJSON(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (Noop) SetJSON(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (Noop) Delete(_ context.Context, _ string) error {
	return nil
}
