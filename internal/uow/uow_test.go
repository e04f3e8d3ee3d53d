// internal/uow/uow_test.go
package uow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avivl/quorum-guard/internal/lockservice"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/store"
	"github.com/avivl/quorum-guard/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal records the order of coordinator steps.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type fakeTx struct {
	j         *journal
	commitErr error
}

func (t *fakeTx) Commit(context.Context) error {
	t.j.add("commit")
	return t.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	t.j.add("rollback")
	return errors.New("rollback failed")
}

// journalLocker wraps a lock service and records acquire/release.
type journalLocker struct {
	*lockservice.Service
	j *journal
}

func (l journalLocker) AcquireLock(ctx context.Context, key string, opts lockservice.AcquireOptions) (*lockservice.LockHandle, bool, error) {
	h, ok, err := l.Service.AcquireLock(ctx, key, opts)
	if ok {
		l.j.add("acquire")
	}
	return h, ok, err
}

func (l journalLocker) ReleaseLock(ctx context.Context, h *lockservice.LockHandle) error {
	l.j.add("release")
	return l.Service.ReleaseLock(ctx, h)
}

type fixture struct {
	coord     *Coordinator[*fakeTx]
	svc       *lockservice.Service
	j         *journal
	commitErr error
}

var fast = lockservice.AcquireOptions{TTL: time.Second, RetryDelay: time.Millisecond}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ls, err := memory.New(nil)
	require.NoError(t, err)
	svc, err := lockservice.New(ls)
	require.NoError(t, err)

	f := &fixture{svc: svc, j: &journal{}}
	logger, _, err := observability.NewTestLogger()
	require.NoError(t, err)

	begin := func(ctx context.Context) (*fakeTx, error) {
		locked, err := svc.IsLocked(ctx, "lock:user:42")
		require.NoError(t, err)
		if locked {
			f.j.add("begin")
		} else {
			f.j.add("begin-unlocked")
		}
		return &fakeTx{j: f.j, commitErr: f.commitErr}, nil
	}
	f.coord, err = New[*fakeTx](journalLocker{svc, f.j}, begin, logger)
	require.NoError(t, err)
	return f
}

func (f *fixture) locked(t *testing.T) bool {
	locked, err := f.svc.IsLocked(context.Background(), "lock:user:42")
	require.NoError(t, err)
	return locked
}

func TestRunCommitOrdering(t *testing.T) {
	f := newFixture(t)

	err := f.coord.Run(context.Background(), "lock:user:42", fast,
		func(ctx context.Context, tx *fakeTx) error {
			f.j.add("body")
			assert.True(t, Holds(ctx, "lock:user:42"))
			return nil
		},
		func(context.Context) { f.j.add("after-commit") },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"acquire", "begin", "body", "commit", "after-commit", "release"}, f.j.all())
	assert.False(t, f.locked(t))
}

func TestRunBodyErrorRollsBackAndReleases(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("insufficient")

	err := f.coord.Run(context.Background(), "lock:user:42", fast,
		func(context.Context, *fakeTx) error { return boom },
		func(context.Context) { f.j.add("after-commit") },
	)
	assert.ErrorIs(t, err, boom)
	// rollback failure is logged, never returned
	assert.Equal(t, []string{"acquire", "begin", "rollback", "release"}, f.j.all())
	assert.False(t, f.locked(t))
}

func TestRunCommitErrorReleases(t *testing.T) {
	f := newFixture(t)
	f.commitErr = store.ErrKeyModified

	err := f.coord.Run(context.Background(), "lock:user:42", fast,
		func(context.Context, *fakeTx) error { return nil },
		func(context.Context) { f.j.add("after-commit") },
	)
	assert.ErrorIs(t, err, store.ErrKeyModified)
	assert.Equal(t, []string{"acquire", "begin", "commit", "rollback", "release"}, f.j.all())
	assert.False(t, f.locked(t))
}

func TestRunPanicReleases(t *testing.T) {
	f := newFixture(t)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = f.coord.Run(context.Background(), "lock:user:42", fast,
			func(context.Context, *fakeTx) error { panic("kaboom") })
	})
	assert.Equal(t, []string{"acquire", "begin", "rollback", "release"}, f.j.all())
	assert.False(t, f.locked(t))
}

func TestRunCanceledContextStillReleases(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := f.coord.Run(ctx, "lock:user:42", fast,
		func(ctx context.Context, _ *fakeTx) error {
			cancel()
			return ctx.Err()
		})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.locked(t))
}

func TestRunLockBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, ok, err := f.svc.AcquireLock(ctx, "lock:user:42", fast)
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = h.Release(ctx) }()

	err = f.coord.Run(ctx, "lock:user:42", fast,
		func(context.Context, *fakeTx) error {
			t.Fatal("body must not run without the lock")
			return nil
		})
	assert.ErrorIs(t, err, store.ErrCannotLock)
	assert.Empty(t, f.j.all())
	assert.True(t, f.locked(t), "the other holder keeps its lock")
}

func TestRunNestedSameKeyFailsFast(t *testing.T) {
	f := newFixture(t)

	var inner error
	err := f.coord.Run(context.Background(), "lock:user:42", fast,
		func(ctx context.Context, _ *fakeTx) error {
			inner = f.coord.Run(ctx, "lock:user:42", fast,
				func(context.Context, *fakeTx) error { return nil })
			return nil
		})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrNestedUnitOfWork)
}

func TestRunNestedOtherKeyAllowed(t *testing.T) {
	f := newFixture(t)

	err := f.coord.Run(context.Background(), "lock:user:42", fast,
		func(ctx context.Context, _ *fakeTx) error {
			return f.coord.Run(ctx, "lock:coupon:X", fast,
				func(ctx context.Context, _ *fakeTx) error {
					assert.True(t, Holds(ctx, "lock:user:42"))
					assert.True(t, Holds(ctx, "lock:coupon:X"))
					return nil
				})
		})
	assert.NoError(t, err)
}

func TestNewValidation(t *testing.T) {
	_, err := New[*fakeTx](nil, func(context.Context) (*fakeTx, error) { return nil, nil }, nil)
	assert.Error(t, err)

	ls, err := memory.New(nil)
	require.NoError(t, err)
	svc, err := lockservice.New(ls)
	require.NoError(t, err)
	_, err = New[*fakeTx](svc, nil, nil)
	assert.Error(t, err)
}
