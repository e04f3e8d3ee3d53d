// internal/cache/ristretto.go
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoCache implements Cache in process with dgraph-io/ristretto.
// Every entry costs 1 and internal bookkeeping cost is ignored, so MaxCost
// is the entry limit.
type RistrettoCache[T any] struct {
	c *ristretto.Cache
}

// NewRistretto returns a cache holding up to maxEntries values.
func NewRistretto[T any](maxEntries int64) (*RistrettoCache[T], error) {
	if maxEntries <= 0 {
		maxEntries = 1 << 16
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// without this every item is also charged its internal metadata size
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoCache[T]{c: rc}, nil
}

// Get implements Cache.
func (r *RistrettoCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	v, ok := r.c.Get(key)
	if !ok {
		return zero, false, nil
	}
	val, ok := v.(T)
	return val, ok, nil
}

// Set implements Cache. Wait makes the value visible to the next Get.
func (r *RistrettoCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.c.SetWithTTL(key, value, 1, ttl)
	r.c.Wait()
	return nil
}

// Invalidate implements Cache.
func (r *RistrettoCache[T]) Invalidate(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.c.Del(key)
	r.c.Wait()
	return nil
}

// Close stops the cache's background goroutines.
func (r *RistrettoCache[T]) Close() {
	r.c.Close()
}
