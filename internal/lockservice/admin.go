// internal/lockservice/admin.go
package lockservice

import (
	"context"
	"errors"

	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/store"
)

// Admin exposes bulk operations for ops tooling and test teardown.
// Request handling code must never hold an Admin.
type Admin struct {
	store  store.LockStore
	logger *observability.SLogger
}

// NewAdmin creates an administrative handle on a LockStore.
func NewAdmin(ls store.LockStore, logger *observability.SLogger) (*Admin, error) {
	if ls == nil {
		return nil, errors.New("lock store is required")
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Admin{store: ls, logger: logger.Named("lockadmin")}, nil
}

// ClearAllLocks force-releases every lock matching pattern regardless of owner.
func (a *Admin) ClearAllLocks(ctx context.Context, pattern string) (int64, error) {
	n, err := a.store.DeleteMatching(ctx, pattern)
	if err != nil {
		return 0, err
	}
	a.logger.InfoCtx(ctx, "cleared locks", "pattern", pattern, "count", n)
	return n, nil
}
