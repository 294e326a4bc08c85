package cache

import (
	"context"
	"time"
)

// Store is a byte-level key/value store with per-entry expiry.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored bytes and whether a live entry exists
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value until now+ttl. A ttl <= 0 stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePattern removes every key matching a glob pattern and returns how many were removed
	DeletePattern(ctx context.Context, pattern string) (int, error)
	// Close releases resources held by the store
	Close() error
}

// Pinger is implemented by stores backed by a remote server
type Pinger interface {
	Ping(ctx context.Context) error
}
