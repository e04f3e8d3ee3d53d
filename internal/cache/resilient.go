// internal/cache/resilient.go
package cache

import (
	"context"
	"time"

	"github.com/avivl/quorum-guard/internal/observability"
)

// Resilient wraps a Cache so its failures never reach the caller. Get errors
// become misses; Set and Invalidate errors are logged and dropped.
type Resilient[T any] struct {
	inner   Cache[T]
	logger  *observability.SLogger
	metrics observability.MetricsClient
}

// NewResilient wraps inner.
func NewResilient[T any](inner Cache[T], logger *observability.SLogger, metrics observability.MetricsClient) *Resilient[T] {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Resilient[T]{inner: inner, logger: logger.Named("cache"), metrics: metrics}
}

// Get implements Cache.
func (r *Resilient[T]) Get(ctx context.Context, key string) (T, bool, error) {
	v, ok, err := r.inner.Get(ctx, key)
	if err != nil {
		r.failed(ctx, "get", key, err)
		var zero T
		return zero, false, nil
	}
	return v, ok, nil
}

// Set implements Cache.
func (r *Resilient[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if err := r.inner.Set(ctx, key, value, ttl); err != nil {
		r.failed(ctx, "set", key, err)
	}
	return nil
}

// Invalidate implements Cache. A failure leaves a stale entry that lives at
// most until its TTL.
func (r *Resilient[T]) Invalidate(ctx context.Context, key string) error {
	if err := r.inner.Invalidate(ctx, key); err != nil {
		r.failed(ctx, "invalidate", key, err)
	}
	return nil
}

func (r *Resilient[T]) failed(ctx context.Context, op, key string, err error) {
	r.metrics.Increment(ctx, observability.MetricCacheErrors, 1, "op", op)
	r.logger.WarnCtx(ctx, "cache "+op+" failed", "key", key, "error", err)
}
