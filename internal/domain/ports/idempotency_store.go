package ports

import (
	"context"
	"time"
)

// IdempotencyStore is a shared key-value store for in-flight markers
type IdempotencyStore interface {
	// Acquire writes value under key only if the key is absent.
	// Returns false when another writer already holds the key.
	Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the stored value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)

	Delete(ctx context.Context, key string) error
}
