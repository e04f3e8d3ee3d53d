// internal/repository/memory/memory.go
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avivl/quorum-guard/internal/domain"
	"github.com/avivl/quorum-guard/internal/repository"
	"github.com/avivl/quorum-guard/internal/store"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already committed or rolled back")

type issueKey struct {
	code   string
	userID string
}

// Database is an in-process versioned store. Transactions stage their
// writes and re-validate every version at commit, so two transactions that
// read the same version cannot both commit.
type Database struct {
	mu       sync.Mutex
	balances map[string]domain.Balance
	coupons  map[string]domain.Coupon
	issues   map[issueKey]domain.CouponIssue
	now      func() time.Time
}

var _ repository.Database = (*Database)(nil)

// New creates an empty database.
func New() *Database {
	return &Database{
		balances: make(map[string]domain.Balance),
		coupons:  make(map[string]domain.Coupon),
		issues:   make(map[issueKey]domain.CouponIssue),
		now:      time.Now,
	}
}

// Begin implements repository.Database.
func (d *Database) Begin(ctx context.Context) (repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{
		db:       d,
		balances: make(map[string]staged[domain.Balance]),
		coupons:  make(map[string]staged[domain.Coupon]),
		issues:   make(map[issueKey]domain.CouponIssue),
	}, nil
}

// Close implements repository.Database.
func (d *Database) Close() {}

// staged is a pending write. expected is the version the write was based
// on; insert means the row must not exist at commit.
type staged[E any] struct {
	value    E
	expected int64
	insert   bool
}

// Tx implements repository.Tx.
type Tx struct {
	db   *Database
	done bool

	balances map[string]staged[domain.Balance]
	coupons  map[string]staged[domain.Coupon]
	issues   map[issueKey]domain.CouponIssue
}

// Balances implements repository.Tx.
func (t *Tx) Balances() repository.BalanceRepository { return balanceRepo{t} }

// Coupons implements repository.Tx.
func (t *Tx) Coupons() repository.CouponRepository { return couponRepo{t} }

// Commit validates every staged write against the committed state and
// applies all of them or none.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		return err
	}

	d := t.db
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, w := range t.balances {
		if err := checkVersion(d.balances, id, w, func(b domain.Balance) int64 { return b.Version }); err != nil {
			return err
		}
	}
	for code, w := range t.coupons {
		if err := checkVersion(d.coupons, code, w, func(c domain.Coupon) int64 { return c.Version }); err != nil {
			return err
		}
	}
	for k := range t.issues {
		if _, dup := d.issues[k]; dup {
			return domain.ErrCouponAlreadyIssued
		}
	}

	for id, w := range t.balances {
		d.balances[id] = w.value
	}
	for code, w := range t.coupons {
		d.coupons[code] = w.value
	}
	for k, issue := range t.issues {
		d.issues[k] = issue
	}
	return nil
}

func checkVersion[E any](committed map[string]E, id string, w staged[E], version func(E) int64) error {
	cur, exists := committed[id]
	switch {
	case w.insert && exists:
		return store.ErrKeyModified
	case w.insert:
		return nil
	case !exists:
		return store.ErrKeyNotFound
	case version(cur) != w.expected:
		return store.ErrKeyModified
	}
	return nil
}

// Rollback discards staged writes. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(context.Context) error {
	t.done = true
	return nil
}

func (t *Tx) check() error {
	if t.done {
		return ErrTxDone
	}
	return nil
}

type balanceRepo struct{ t *Tx }

func (r balanceRepo) FindByID(_ context.Context, userID string) (*domain.Balance, error) {
	if err := r.t.check(); err != nil {
		return nil, err
	}
	if w, ok := r.t.balances[userID]; ok {
		b := w.value
		return &b, nil
	}

	r.t.db.mu.Lock()
	b, ok := r.t.db.balances[userID]
	r.t.db.mu.Unlock()
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	return &b, nil
}

func (r balanceRepo) Insert(_ context.Context, b *domain.Balance) error {
	if err := r.t.check(); err != nil {
		return err
	}
	r.t.db.mu.Lock()
	_, exists := r.t.db.balances[b.UserID]
	r.t.db.mu.Unlock()
	if _, pending := r.t.balances[b.UserID]; exists || pending {
		return store.ErrKeyModified
	}

	b.Version = 0
	b.UpdatedAt = r.t.db.now()
	r.t.balances[b.UserID] = staged[domain.Balance]{value: *b, insert: true}
	return nil
}

func (r balanceRepo) Save(_ context.Context, b *domain.Balance) error {
	if err := r.t.check(); err != nil {
		return err
	}
	w, ok := r.t.balances[b.UserID]
	if !ok {
		r.t.db.mu.Lock()
		cur, exists := r.t.db.balances[b.UserID]
		r.t.db.mu.Unlock()
		if !exists {
			return store.ErrKeyNotFound
		}
		w = staged[domain.Balance]{expected: cur.Version, value: cur}
	}
	if w.value.Version != b.Version {
		return store.ErrKeyModified
	}

	b.Version++
	b.UpdatedAt = r.t.db.now()
	w.value = *b
	r.t.balances[b.UserID] = w
	return nil
}

type couponRepo struct{ t *Tx }

func (r couponRepo) FindByCode(_ context.Context, code string) (*domain.Coupon, error) {
	if err := r.t.check(); err != nil {
		return nil, err
	}
	if w, ok := r.t.coupons[code]; ok {
		c := w.value
		return &c, nil
	}

	r.t.db.mu.Lock()
	c, ok := r.t.db.coupons[code]
	r.t.db.mu.Unlock()
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	return &c, nil
}

func (r couponRepo) Insert(_ context.Context, c *domain.Coupon) error {
	if err := r.t.check(); err != nil {
		return err
	}
	r.t.db.mu.Lock()
	_, exists := r.t.db.coupons[c.Code]
	r.t.db.mu.Unlock()
	if _, pending := r.t.coupons[c.Code]; exists || pending {
		return store.ErrKeyModified
	}

	c.Version = 0
	c.UpdatedAt = r.t.db.now()
	r.t.coupons[c.Code] = staged[domain.Coupon]{value: *c, insert: true}
	return nil
}

func (r couponRepo) Save(_ context.Context, c *domain.Coupon) error {
	if err := r.t.check(); err != nil {
		return err
	}
	w, ok := r.t.coupons[c.Code]
	if !ok {
		r.t.db.mu.Lock()
		cur, exists := r.t.db.coupons[c.Code]
		r.t.db.mu.Unlock()
		if !exists {
			return store.ErrKeyNotFound
		}
		w = staged[domain.Coupon]{expected: cur.Version, value: cur}
	}
	if w.value.Version != c.Version {
		return store.ErrKeyModified
	}

	c.Version++
	c.UpdatedAt = r.t.db.now()
	w.value = *c
	r.t.coupons[c.Code] = w
	return nil
}

func (r couponRepo) HasIssue(_ context.Context, code, userID string) (bool, error) {
	if err := r.t.check(); err != nil {
		return false, err
	}
	k := issueKey{code: code, userID: userID}
	if _, ok := r.t.issues[k]; ok {
		return true, nil
	}
	r.t.db.mu.Lock()
	_, ok := r.t.db.issues[k]
	r.t.db.mu.Unlock()
	return ok, nil
}

func (r couponRepo) AddIssue(ctx context.Context, issue domain.CouponIssue) error {
	has, err := r.HasIssue(ctx, issue.Code, issue.UserID)
	if err != nil {
		return err
	}
	if has {
		return domain.ErrCouponAlreadyIssued
	}
	if issue.IssuedAt.IsZero() {
		issue.IssuedAt = r.t.db.now()
	}
	r.t.issues[issueKey{code: issue.Code, userID: issue.UserID}] = issue
	return nil
}
