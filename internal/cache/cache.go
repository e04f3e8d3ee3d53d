// internal/cache/cache.go
package cache

import (
	"context"
	"time"
)

// Cache is a derived, non-authoritative store. Write paths never read from it.
type Cache[T any] interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) (T, bool, error)
	// Set stores value for ttl. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	// Invalidate removes key. Removing an absent key is not an error.
	Invalidate(ctx context.Context, key string) error
}

// ReadThrough returns the cached value for key, or loads it from the
// authoritative store and repopulates the cache. A cache error is treated as
// a miss; a failed repopulation does not fail the read and is not reported
// here. Wrap c with NewResilient to have cache failures logged and counted.
func ReadThrough[T any](
	ctx context.Context,
	c Cache[T],
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	if v, ok, err := c.Get(ctx, key); err == nil && ok {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	_ = c.Set(ctx, key, v, ttl)
	return v, nil
}
