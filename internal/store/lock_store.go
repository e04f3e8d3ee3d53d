// internal/store/lock_store.go
package store

import (
	"context"
	"time"
)

// LockStore is the key-value primitive the lock service is built on.
// Every method is a single atomic operation on the backend; connectivity
// failures are returned wrapped with ErrNotReachable and never reported as
// a successful or failed lock outcome.
type LockStore interface {
	// TrySet creates key -> token only if key is absent, expiring after ttl.
	// Returns true if this call created the entry.
	TrySet(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// DeleteIfOwned deletes key only if its current value equals token.
	// Returns true if the entry was deleted.
	DeleteIfOwned(ctx context.Context, key, token string) (bool, error)

	// Get returns the current token for key. It is a point-in-time read for
	// diagnostics and must not drive locking decisions.
	Get(ctx context.Context, key string) (token string, found bool, err error)

	// DeleteMatching removes every key matching a glob pattern and returns the count.
	// Administrative use only.
	DeleteMatching(ctx context.Context, pattern string) (int64, error)

	// Close releases resources held by the store
	Close()

	// GetConfig returns the current store configuration
	GetConfig() StoreConfig
}
