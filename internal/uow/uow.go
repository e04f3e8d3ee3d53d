// internal/uow/uow.go
package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/avivl/quorum-guard/internal/lockservice"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNestedUnitOfWork is returned when Run is entered for a key the calling
// context already holds. Locks are not re-entrant so the inner acquisition
// could only ever time out.
var ErrNestedUnitOfWork = errors.New("nested unit of work on held lock key")

// Tx is the transaction surface the coordinator drives.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BeginFunc opens a transaction.
type BeginFunc[T Tx] func(ctx context.Context) (T, error)

// Locker is the part of lockservice.Service the coordinator needs.
type Locker interface {
	AcquireLock(ctx context.Context, key string, opts lockservice.AcquireOptions) (*lockservice.LockHandle, bool, error)
	ReleaseLock(ctx context.Context, h *lockservice.LockHandle) error
}

// Coordinator runs a body inside lock -> begin -> commit/rollback -> release.
type Coordinator[T Tx] struct {
	locks  Locker
	begin  BeginFunc[T]
	logger *observability.SLogger
	tracer trace.Tracer
}

// New creates a coordinator.
func New[T Tx](locks Locker, begin BeginFunc[T], logger *observability.SLogger) (*Coordinator[T], error) {
	if locks == nil {
		return nil, errors.New("locker is required")
	}
	if begin == nil {
		return nil, errors.New("begin function is required")
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Coordinator[T]{
		locks:  locks,
		begin:  begin,
		logger: logger.Named("uow"),
		tracer: observability.Tracer(),
	}, nil
}

type heldKey struct{}

type held struct {
	key    string
	parent *held
}

func (h *held) contains(key string) bool {
	for ; h != nil; h = h.parent {
		if h.key == key {
			return true
		}
	}
	return false
}

// Holds reports whether ctx is inside a unit of work guarded by key.
func Holds(ctx context.Context, key string) bool {
	h, _ := ctx.Value(heldKey{}).(*held)
	return h.contains(key)
}

// Run acquires key, opens a transaction, runs body and commits when body
// returns nil or rolls back otherwise. afterCommit hooks run only after a
// successful commit and before the lock is released. The lock is released on
// every path, including a panic in body, which is re-raised afterwards.
//
// A busy lock returns an error wrapping store.ErrCannotLock.
func (c *Coordinator[T]) Run(
	ctx context.Context,
	key string,
	opts lockservice.AcquireOptions,
	body func(ctx context.Context, tx T) error,
	afterCommit ...func(ctx context.Context),
) (err error) {
	if Holds(ctx, key) {
		return fmt.Errorf("%w: %s", ErrNestedUnitOfWork, key)
	}

	ctx, span := c.tracer.Start(ctx, "uow.Run", trace.WithAttributes(attribute.String("lock.key", key)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	handle, ok, err := c.locks.AcquireLock(ctx, key, opts)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, store.ErrCannotLock)
	}
	defer c.release(ctx, handle)

	ctx = context.WithValue(ctx, heldKey{}, &held{key: key, parent: ctxHeld(ctx)})

	tx, err := c.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			c.logger.ErrorCtx(ctx, rbErr, "msg", "rollback failed", "key", key)
		}
	}()

	if err := body(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	span.AddEvent("committed")

	for _, hook := range afterCommit {
		hook(ctx)
	}
	return nil
}

func ctxHeld(ctx context.Context) *held {
	h, _ := ctx.Value(heldKey{}).(*held)
	return h
}

func (c *Coordinator[T]) release(ctx context.Context, h *lockservice.LockHandle) {
	if err := c.locks.ReleaseLock(context.WithoutCancel(ctx), h); err != nil {
		c.logger.ErrorCtx(ctx, err, "msg", "lock release failed", "key", h.Key())
	}
}
