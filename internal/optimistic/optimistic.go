// internal/optimistic/optimistic.go
package optimistic

import (
	"context"
	"errors"
	"time"

	"github.com/avivl/quorum-guard/internal/domain"
	"github.com/avivl/quorum-guard/internal/lockservice"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/retry"
	"github.com/avivl/quorum-guard/internal/uow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result labels recorded per execution.
const (
	ResultSuccess    = "success"
	ResultContention = "contention"
	ResultDeclined   = "declined"
	ResultError      = "error"
)

// Config binds a guarded operation to its lock key and retry budget.
type Config[A any] struct {
	// Name labels logs, spans and metrics.
	Name string
	// Key derives the lock key from the operation argument. It must be deterministic.
	Key func(arg A) string
	// Policy bounds whole-attempt retries on LockBusy and VersionConflict.
	Policy retry.Policy
	// Lock is used for every acquisition. Its RetryCount is spent inside each attempt.
	Lock lockservice.AcquireOptions
}

// Validate checks the configuration.
func (c Config[A]) Validate() error {
	if c.Name == "" {
		return errors.New("operation name is required")
	}
	if c.Key == nil {
		return errors.New("key function is required")
	}
	return c.Policy.Validate()
}

// Controller re-runs a unit of work when it loses a race.
type Controller[A any, T uow.Tx] struct {
	cfg     Config[A]
	coord   *uow.Coordinator[T]
	logger  *observability.SLogger
	metrics observability.MetricsClient
	tracer  trace.Tracer
}

// New creates a controller. Nil logger and metrics are replaced by no-ops.
func New[A any, T uow.Tx](
	cfg Config[A],
	coord *uow.Coordinator[T],
	logger *observability.SLogger,
	metrics observability.MetricsClient,
) (*Controller[A, T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if coord == nil {
		return nil, errors.New("coordinator is required")
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Controller[A, T]{
		cfg:     cfg,
		coord:   coord,
		logger:  logger.Named("optimistic").With("operation", cfg.Name),
		metrics: metrics,
		tracer:  observability.Tracer(),
	}, nil
}

// Name returns the operation name.
func (c *Controller[A, T]) Name() string { return c.cfg.Name }

// Execute runs body as one unit of work per attempt under the lock derived
// from arg. Conflicts are retried within Policy; exhaustion returns an error
// satisfying retry.IsContention. Any other failure is returned unchanged
// after the attempt's lock is released.
func (c *Controller[A, T]) Execute(
	ctx context.Context,
	arg A,
	body func(ctx context.Context, tx T) error,
	afterCommit ...func(ctx context.Context),
) (err error) {
	key := c.cfg.Key(arg)
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "optimistic."+c.cfg.Name,
		trace.WithAttributes(attribute.String("lock.key", key)))

	attempts := 0
	defer func() {
		result := classify(err)
		span.SetAttributes(attribute.Int("attempts", attempts), attribute.String("result", result))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		span.End()

		c.metrics.Increment(ctx, observability.MetricOperationResult, 1, "operation", c.cfg.Name, "result", result)
		c.metrics.Observe(ctx, observability.MetricOperationTime, time.Since(start).Seconds(), "operation", c.cfg.Name)
		if result == ResultContention || result == ResultError {
			c.logger.WarnCtx(ctx, "operation failed", "key", key, "attempts", attempts, "result", result, "error", err)
		}
	}()

	return retry.Do(ctx, c.cfg.Policy, func(ctx context.Context, attempt int) error {
		attempts = attempt + 1
		c.metrics.Increment(ctx, observability.MetricOperationRuns, 1, "operation", c.cfg.Name)
		err := c.coord.Run(ctx, key, c.cfg.Lock, body, afterCommit...)
		if err != nil && attempt < c.cfg.Policy.MaxRetries && retry.IsConflict(err) {
			c.logger.Debugw("attempt lost race", "key", key, "attempt", attempt, "error", err)
		}
		return err
	})
}

func classify(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case retry.IsContention(err):
		return ResultContention
	case domain.IsBusinessRule(err):
		return ResultDeclined
	default:
		return ResultError
	}
}
