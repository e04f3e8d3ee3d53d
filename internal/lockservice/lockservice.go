// internal/lockservice/lockservice.go
package lockservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/store"
	"github.com/google/uuid"
)

// AcquireOptions controls a single acquisition.
type AcquireOptions struct {
	// TTL is the lease after which the store expires the lock. Callers must
	// pick a value safely above the expected critical section duration; leases
	// are never extended automatically.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
	// RetryCount is the number of extra attempts after the first one fails.
	RetryCount int `yaml:"retryCount" mapstructure:"retryCount"`
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration `yaml:"retryDelay" mapstructure:"retryDelay"`
}

// DefaultAcquireOptions are used for zero fields in AcquireOptions.
var DefaultAcquireOptions = AcquireOptions{
	TTL:        5 * time.Second,
	RetryCount: 3,
	RetryDelay: 100 * time.Millisecond,
}

// Service acquires, releases and queries named locks on a LockStore.
// Locks are not re-entrant: acquiring a key this process already holds
// fails like any other contended acquisition.
type Service struct {
	store     store.LockStore
	logger    *observability.SLogger
	metrics   observability.MetricsClient
	callbacks Callbacks
	defaults  AcquireOptions

	newToken func() string
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *observability.SLogger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics client.
func WithMetrics(m observability.MetricsClient) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCallbacks sets lifecycle callbacks.
func WithCallbacks(c Callbacks) Option {
	return func(s *Service) { s.callbacks = c }
}

// WithDefaults overrides DefaultAcquireOptions for this service.
func WithDefaults(o AcquireOptions) Option {
	return func(s *Service) { s.defaults = o }
}

// New creates a lock service on top of a LockStore.
func New(ls store.LockStore, opts ...Option) (*Service, error) {
	if ls == nil {
		return nil, errors.New("lock store is required")
	}
	s := &Service{
		store:     ls,
		logger:    observability.NewNopLogger(),
		metrics:   observability.NoopMetrics{},
		callbacks: NoOpCallbacks{},
		defaults:  DefaultAcquireOptions,
		newToken:  uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("lockservice")
	return s, nil
}

// Key builds the lock key for a resource: lock:<resource-type>:<resource-id>.
func Key(resourceType, resourceID string) string {
	return store.LockKey(resourceType, resourceID)
}

func (s *Service) resolve(opts AcquireOptions) AcquireOptions {
	if opts.TTL <= 0 {
		opts.TTL = s.defaults.TTL
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = s.defaults.RetryDelay
	}
	return opts
}

// AcquireLock tries to take key for opts.TTL, making at most RetryCount+1
// attempts with RetryDelay between them. Exhausting the budget returns
// (nil, false, nil). A store failure on the final attempt is returned as an
// error wrapping store.ErrNotReachable, never reported as free or held.
func (s *Service) AcquireLock(ctx context.Context, key string, opts AcquireOptions) (*LockHandle, bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, false, err
	}
	opts = s.resolve(opts)
	keyType := keyType(key)

	var lastErr error
	for attempt := 0; attempt <= opts.RetryCount; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, opts.RetryDelay); err != nil {
				return nil, false, err
			}
		}

		token := s.newToken()
		s.callbacks.OnAttempt(key, attempt)
		s.metrics.Increment(ctx, observability.MetricLockAttempts, 1, "key_type", keyType)

		acquired, err := s.store.TrySet(ctx, key, token, opts.TTL)
		if err != nil {
			if !errors.Is(err, store.ErrNotReachable) {
				return nil, false, err
			}
			lastErr = err
			s.metrics.Increment(ctx, observability.MetricStoreErrors, 1, "op", "try_set")
			s.logger.WarnCtx(ctx, "lock store unavailable", "key", key, "attempt", attempt, "error", err)
			continue
		}
		lastErr = nil

		if acquired {
			s.callbacks.OnAcquired(key)
			s.metrics.Increment(ctx, observability.MetricLockAcquired, 1, "key_type", keyType)
			s.logger.Debugw("lock acquired", "key", key, "attempt", attempt, "ttl", opts.TTL)
			return &LockHandle{
				key:        key,
				token:      token,
				ttl:        opts.TTL,
				acquiredAt: s.now(),
				svc:        s,
			}, true, nil
		}
	}

	if lastErr != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, lastErr)
	}

	s.callbacks.OnBusy(key)
	s.metrics.Increment(ctx, observability.MetricLockBusy, 1, "key_type", keyType)
	s.logger.Debugw("lock busy", "key", key, "attempts", opts.RetryCount+1)
	return nil, false, nil
}

// ReleaseLock frees the lock held through h. A nil handle, an already
// released handle, or a lease that expired and was re-acquired by someone
// else are all no-ops.
func (s *Service) ReleaseLock(ctx context.Context, h *LockHandle) error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}

	owned, err := s.store.DeleteIfOwned(ctx, h.key, h.token)
	if err != nil {
		// allow the caller to try again
		h.released.Store(false)
		s.metrics.Increment(ctx, observability.MetricStoreErrors, 1, "op", "delete_if_owned")
		return fmt.Errorf("release %s: %w", h.key, err)
	}

	if !owned {
		s.logger.WarnCtx(ctx, "lock lease lost before release", "key", h.key, "held_for", s.now().Sub(h.acquiredAt))
	}
	s.callbacks.OnReleased(h.key, owned)
	s.metrics.Increment(ctx, observability.MetricLockReleased, 1, "key_type", keyType(h.key), "owned", fmt.Sprint(owned))
	return nil
}

// IsLocked reports whether the store currently holds any token for key.
func (s *Service) IsLocked(ctx context.Context, key string) (bool, error) {
	_, found, err := s.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return found, nil
}

// keyType extracts the resource type from lock:<type>:<id>, for metric labels.
func keyType(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) == 3 && parts[0] == store.LockNamespace {
		return parts[1]
	}
	return "other"
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
