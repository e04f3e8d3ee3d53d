// internal/repository/repository.go
package repository

import (
	"context"

	"github.com/avivl/quorum-guard/internal/domain"
)

// BalanceRepository persists point balances with optimistic version checks.
type BalanceRepository interface {
	// FindByID returns store.ErrKeyNotFound when the account does not exist.
	FindByID(ctx context.Context, userID string) (*domain.Balance, error)
	// Insert creates a new account at version 0. A concurrent insert of the
	// same id surfaces as store.ErrKeyModified.
	Insert(ctx context.Context, b *domain.Balance) error
	// Save applies b only if the stored version equals b.Version, then
	// increments b.Version. A moved version is store.ErrKeyModified.
	Save(ctx context.Context, b *domain.Balance) error
}

// CouponRepository persists coupon inventory and issued coupons.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (*domain.Coupon, error)
	Insert(ctx context.Context, c *domain.Coupon) error
	Save(ctx context.Context, c *domain.Coupon) error
	HasIssue(ctx context.Context, code, userID string) (bool, error)
	// AddIssue returns domain.ErrCouponAlreadyIssued for a duplicate pair.
	AddIssue(ctx context.Context, issue domain.CouponIssue) error
}

// Tx is one database unit of work.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Balances() BalanceRepository
	Coupons() CouponRepository
}

// Database opens units of work.
type Database interface {
	Begin(ctx context.Context) (Tx, error)
	Close()
}

// View runs fn in a transaction that is always rolled back.
func View(ctx context.Context, db Database, fn func(Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return fn(tx)
}
