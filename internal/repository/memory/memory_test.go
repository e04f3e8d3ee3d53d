// internal/repository/memory/memory_test.go
package memory

import (
	"context"
	"testing"

	"github.com/avivl/quorum-guard/internal/domain"
	"github.com/avivl/quorum-guard/internal/repository"
	"github.com/avivl/quorum-guard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBalance(t *testing.T, db *Database, userID string, points int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	b := domain.NewBalance(userID)
	b.Points = points
	require.NoError(t, tx.Balances().Insert(ctx, b))
	require.NoError(t, tx.Commit(ctx))
}

func TestBalanceLifecycle(t *testing.T) {
	ctx := context.Background()
	db := New()
	seedBalance(t, db, "42", 5000)

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	b, err := tx.Balances().FindByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Version)

	require.NoError(t, b.Charge(10000))
	require.NoError(t, tx.Balances().Save(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	// reads inside the tx see the staged write
	again, err := tx.Balances().FindByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(15000), again.Points)

	require.NoError(t, tx.Commit(ctx))

	err = repository.View(ctx, db, func(tx repository.Tx) error {
		b, err := tx.Balances().FindByID(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, int64(15000), b.Points)
		assert.Equal(t, int64(1), b.Version)
		return nil
	})
	require.NoError(t, err)
}

func TestLostUpdateIsRejectedAtCommit(t *testing.T) {
	ctx := context.Background()
	db := New()
	seedBalance(t, db, "42", 5000)

	tx1, _ := db.Begin(ctx)
	tx2, _ := db.Begin(ctx)

	b1, err := tx1.Balances().FindByID(ctx, "42")
	require.NoError(t, err)
	b2, err := tx2.Balances().FindByID(ctx, "42")
	require.NoError(t, err)

	require.NoError(t, b1.Charge(10000))
	require.NoError(t, b2.Charge(10000))
	require.NoError(t, tx1.Balances().Save(ctx, b1))
	require.NoError(t, tx2.Balances().Save(ctx, b2))

	require.NoError(t, tx1.Commit(ctx))
	assert.ErrorIs(t, tx2.Commit(ctx), store.ErrKeyModified)

	_ = repository.View(ctx, db, func(tx repository.Tx) error {
		b, _ := tx.Balances().FindByID(ctx, "42")
		assert.Equal(t, int64(15000), b.Points)
		return nil
	})
}

func TestSaveStaleVersion(t *testing.T) {
	ctx := context.Background()
	db := New()
	seedBalance(t, db, "42", 1)

	tx, _ := db.Begin(ctx)
	stale := &domain.Balance{UserID: "42", Points: 99, Version: 7}
	assert.ErrorIs(t, tx.Balances().Save(ctx, stale), store.ErrKeyModified)

	missing := &domain.Balance{UserID: "nobody"}
	assert.ErrorIs(t, tx.Balances().Save(ctx, missing), store.ErrKeyNotFound)

	_, err := tx.Balances().FindByID(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	db := New()

	tx1, _ := db.Begin(ctx)
	tx2, _ := db.Begin(ctx)
	require.NoError(t, tx1.Balances().Insert(ctx, domain.NewBalance("7")))
	require.NoError(t, tx2.Balances().Insert(ctx, domain.NewBalance("7")))

	require.NoError(t, tx1.Commit(ctx))
	assert.ErrorIs(t, tx2.Commit(ctx), store.ErrKeyModified)

	tx3, _ := db.Begin(ctx)
	assert.ErrorIs(t, tx3.Balances().Insert(ctx, domain.NewBalance("7")), store.ErrKeyModified)
}

func TestRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	db := New()

	tx, _ := db.Begin(ctx)
	require.NoError(t, tx.Balances().Insert(ctx, domain.NewBalance("1")))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx))

	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone)
	_, err := tx.Balances().FindByID(ctx, "1")
	assert.ErrorIs(t, err, ErrTxDone)

	_ = repository.View(ctx, db, func(tx repository.Tx) error {
		_, err := tx.Balances().FindByID(ctx, "1")
		assert.ErrorIs(t, err, store.ErrKeyNotFound)
		return nil
	})
}

func TestCoupons(t *testing.T) {
	ctx := context.Background()
	db := New()

	tx, _ := db.Begin(ctx)
	c, err := domain.NewCoupon("FLASH", 1)
	require.NoError(t, err)
	require.NoError(t, tx.Coupons().Insert(ctx, c))
	require.NoError(t, tx.Commit(ctx))

	tx, _ = db.Begin(ctx)
	c, err = tx.Coupons().FindByCode(ctx, "FLASH")
	require.NoError(t, err)
	require.NoError(t, c.Issue())
	require.NoError(t, tx.Coupons().Save(ctx, c))
	require.NoError(t, tx.Coupons().AddIssue(ctx, domain.CouponIssue{Code: "FLASH", UserID: "u1"}))
	assert.ErrorIs(t, tx.Coupons().AddIssue(ctx, domain.CouponIssue{Code: "FLASH", UserID: "u1"}), domain.ErrCouponAlreadyIssued)
	require.NoError(t, tx.Commit(ctx))

	tx, _ = db.Begin(ctx)
	has, err := tx.Coupons().HasIssue(ctx, "FLASH", "u1")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = tx.Coupons().HasIssue(ctx, "FLASH", "u2")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = tx.Coupons().FindByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestDuplicateIssueAcrossTransactions(t *testing.T) {
	ctx := context.Background()
	db := New()

	tx1, _ := db.Begin(ctx)
	tx2, _ := db.Begin(ctx)
	require.NoError(t, tx1.Coupons().AddIssue(ctx, domain.CouponIssue{Code: "X", UserID: "u"}))
	require.NoError(t, tx2.Coupons().AddIssue(ctx, domain.CouponIssue{Code: "X", UserID: "u"}))
	require.NoError(t, tx1.Commit(ctx))
	assert.ErrorIs(t, tx2.Commit(ctx), domain.ErrCouponAlreadyIssued)
}

func TestBeginCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
