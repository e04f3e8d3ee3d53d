// internal/lockservice/lockservice_test.go
package lockservice_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avivl/quorum-guard/internal/lockservice"
	"github.com/avivl/quorum-guard/internal/store"
	"github.com/avivl/quorum-guard/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCallbacks records lifecycle events
type countingCallbacks struct {
	mu       sync.Mutex
	attempts map[string]int
	acquired int
	busy     int
	released []bool
}

func newCountingCallbacks() *countingCallbacks {
	return &countingCallbacks{attempts: make(map[string]int)}
}

func (c *countingCallbacks) OnAttempt(key string, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[key]++
}

func (c *countingCallbacks) OnAcquired(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquired++
}

func (c *countingCallbacks) OnBusy(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy++
}

func (c *countingCallbacks) OnReleased(_ string, owned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, owned)
}

// flakyStore fails TrySet with an unreachable error a fixed number of times
type flakyStore struct {
	store.LockStore
	failures atomic.Int32
}

func (f *flakyStore) TrySet(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if f.failures.Add(-1) >= 0 {
		return false, store.Unreachable("trySet", errors.New("connection refused"))
	}
	return f.LockStore.TrySet(ctx, key, token, ttl)
}

func setup(t *testing.T, opts ...lockservice.Option) (*lockservice.Service, *memory.Store) {
	t.Helper()
	ms, err := memory.New(nil)
	require.NoError(t, err)
	svc, err := lockservice.New(ms, opts...)
	require.NoError(t, err)
	return svc, ms
}

var fast = lockservice.AcquireOptions{TTL: time.Second, RetryCount: 0, RetryDelay: time.Millisecond}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	key := lockservice.Key("user", "42")

	h, ok, err := svc.AcquireLock(ctx, key, fast)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lock:user:42", h.Key())
	assert.NotEmpty(t, h.Token())
	assert.Equal(t, time.Second, h.TTL())
	assert.False(t, h.ExpiresAt().IsZero())

	locked, err := svc.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, h.Release(ctx))
	assert.True(t, h.Released())

	locked, err = svc.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestTokensAreUnique(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	h1, ok, err := svc.AcquireLock(ctx, "lock:user:1", fast)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h1.Release(ctx))

	h2, ok, err := svc.AcquireLock(ctx, "lock:user:1", fast)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, h1.Token(), h2.Token())
}

func TestNotReentrant(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	h, ok, err := svc.AcquireLock(ctx, "lock:user:7", fast)
	require.NoError(t, err)
	require.True(t, ok)

	again, ok, err := svc.AcquireLock(ctx, "lock:user:7", fast)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, again)

	require.NoError(t, h.Release(ctx))
}

func TestMutualExclusion(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	key := lockservice.Key("coupon", "FLASH")

	const n = 32
	var winners atomic.Int32
	var wg sync.WaitGroup
	handles := make(chan *lockservice.LockHandle, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, ok, err := svc.AcquireLock(ctx, key, fast)
			if err == nil && ok {
				winners.Add(1)
				handles <- h
			}
		}()
	}
	wg.Wait()
	close(handles)

	assert.Equal(t, int32(1), winners.Load())
	locked, err := svc.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	for h := range handles {
		require.NoError(t, h.Release(ctx))
	}
}

func TestIndependentKeys(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	h1, ok, err := svc.AcquireLock(ctx, "lock:user:1", fast)
	require.NoError(t, err)
	require.True(t, ok)

	h2, ok, err := svc.AcquireLock(ctx, "lock:user:2", fast)
	require.NoError(t, err)
	require.True(t, ok, "holding one key must not block another")

	require.NoError(t, h1.Release(ctx))
	require.NoError(t, h2.Release(ctx))
}

func TestOwnershipCheckedRelease(t *testing.T) {
	ctx := context.Background()
	svc, ms := setup(t)
	key := "lock:user:9"

	h, ok, err := svc.AcquireLock(ctx, key, lockservice.AcquireOptions{TTL: 50 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, ok)

	// lease expires and another holder takes over
	time.Sleep(80 * time.Millisecond)
	other, ok, err := svc.AcquireLock(ctx, key, fast)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, h.Release(ctx))

	token, found, err := ms.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found, "stale release must not remove the new holder's lock")
	assert.Equal(t, other.Token(), token)

	require.NoError(t, other.Release(ctx))
}

func TestTTLAutoExpiry(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	key := "lock:user:ttl"

	_, ok, err := svc.AcquireLock(ctx, key, lockservice.AcquireOptions{TTL: 100 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(150 * time.Millisecond)

	locked, err := svc.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestIdempotentRelease(t *testing.T) {
	ctx := context.Background()
	cb := newCountingCallbacks()
	svc, _ := setup(t, lockservice.WithCallbacks(cb))

	other, ok, err := svc.AcquireLock(ctx, "lock:user:other", fast)
	require.NoError(t, err)
	require.True(t, ok)

	h, ok, err := svc.AcquireLock(ctx, "lock:user:1", fast)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.ReleaseLock(ctx, h))
	require.NoError(t, svc.ReleaseLock(ctx, h))
	require.NoError(t, svc.ReleaseLock(ctx, nil))

	assert.Equal(t, []bool{true}, cb.released)

	locked, err := svc.IsLocked(ctx, other.Key())
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestRetryBudgetArithmetic(t *testing.T) {
	ctx := context.Background()

	for _, retries := range []int{0, 1, 4} {
		cb := newCountingCallbacks()
		svc, _ := setup(t, lockservice.WithCallbacks(cb))
		key := "lock:user:budget"

		_, ok, err := svc.AcquireLock(ctx, key, fast)
		require.NoError(t, err)
		require.True(t, ok)

		start := time.Now()
		h, ok, err := svc.AcquireLock(ctx, key, lockservice.AcquireOptions{
			TTL:        time.Second,
			RetryCount: retries,
			RetryDelay: 10 * time.Millisecond,
		})
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, h)
		assert.Equal(t, 1+retries+1, cb.attempts[key], "first holder attempt plus R+1 contended attempts")
		assert.Equal(t, 1, cb.busy)
		assert.GreaterOrEqual(t, elapsed, time.Duration(retries)*10*time.Millisecond)
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	key := "lock:user:handoff"

	h, ok, err := svc.AcquireLock(ctx, key, fast)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = h.Release(context.Background())
	}()

	h2, ok, err := svc.AcquireLock(ctx, key, lockservice.AcquireOptions{
		TTL:        time.Second,
		RetryCount: 20,
		RetryDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h2.Release(ctx))
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	ms, err := memory.New(nil)
	require.NoError(t, err)

	t.Run("exhausted_budget_surfaces_error", func(t *testing.T) {
		fs := &flakyStore{LockStore: ms}
		fs.failures.Store(10)
		svc, err := lockservice.New(fs)
		require.NoError(t, err)

		h, ok, err := svc.AcquireLock(ctx, "lock:user:1", lockservice.AcquireOptions{RetryCount: 2, RetryDelay: time.Millisecond})
		assert.Nil(t, h)
		assert.False(t, ok)
		assert.ErrorIs(t, err, store.ErrNotReachable)
	})

	t.Run("recovers_within_budget", func(t *testing.T) {
		fs := &flakyStore{LockStore: ms}
		fs.failures.Store(1)
		svc, err := lockservice.New(fs)
		require.NoError(t, err)

		h, ok, err := svc.AcquireLock(ctx, "lock:user:2", lockservice.AcquireOptions{RetryCount: 2, RetryDelay: time.Millisecond})
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, h.Release(ctx))
	})
}

func TestAcquireCanceledDuringWait(t *testing.T) {
	svc, _ := setup(t)
	_, ok, err := svc.AcquireLock(context.Background(), "lock:user:c", fast)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok, err = svc.AcquireLock(ctx, "lock:user:c", lockservice.AcquireOptions{RetryCount: 100, RetryDelay: 50 * time.Millisecond})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvalidKey(t *testing.T) {
	svc, _ := setup(t)
	_, ok, err := svc.AcquireLock(context.Background(), "", fast)
	assert.False(t, ok)
	assert.ErrorIs(t, err, store.ErrInvalidKey)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := lockservice.New(nil)
	assert.Error(t, err)
	_, err = lockservice.NewAdmin(nil, nil)
	assert.Error(t, err)
}

func TestAdminClearAllLocks(t *testing.T) {
	ctx := context.Background()
	svc, ms := setup(t)

	for _, key := range []string{"lock:user:1", "lock:user:2", "lock:coupon:A"} {
		_, ok, err := svc.AcquireLock(ctx, key, fast)
		require.NoError(t, err)
		require.True(t, ok)
	}

	admin, err := lockservice.NewAdmin(ms, nil)
	require.NoError(t, err)

	n, err := admin.ClearAllLocks(ctx, "lock:user:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	locked, err := svc.IsLocked(ctx, "lock:coupon:A")
	require.NoError(t, err)
	assert.True(t, locked)

	n, err = admin.ClearAllLocks(ctx, "lock:*")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
