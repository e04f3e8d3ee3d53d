// internal/lockservice/handle.go
package lockservice

import (
	"context"
	"sync/atomic"
	"time"
)

// LockHandle represents one successful acquisition. The token proves
// ownership and is never reused; a new acquisition yields a new handle.
type LockHandle struct {
	key        string
	token      string
	ttl        time.Duration
	acquiredAt time.Time

	svc      *Service
	released atomic.Bool
}

// Key returns the protected resource key.
func (h *LockHandle) Key() string { return h.key }

// Token returns the ownership token written to the store.
func (h *LockHandle) Token() string { return h.token }

// TTL returns the lease duration requested at acquisition.
func (h *LockHandle) TTL() time.Duration { return h.ttl }

// ExpiresAt returns the local estimate of when the store drops the lease.
func (h *LockHandle) ExpiresAt() time.Time { return h.acquiredAt.Add(h.ttl) }

// Released reports whether Release already completed for this handle.
func (h *LockHandle) Released() bool { return h.released.Load() }

// Release frees the lock if this handle still owns it. Safe to call more than once.
func (h *LockHandle) Release(ctx context.Context) error {
	return h.svc.ReleaseLock(ctx, h)
}
