package ports

import (
	"context"
	"time"
)

// Store interface for session token invalidation
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}

// ViewStore persists small client-local values, most notably the last shown view.
// Get returns ok=false when the key was never written.
type ViewStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
