// internal/repository/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avivl/quorum-guard/internal/domain"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/repository"
	"github.com/avivl/quorum-guard/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS point_balances (
	user_id    TEXT PRIMARY KEY,
	points     BIGINT NOT NULL CHECK (points >= 0),
	version    BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS coupons (
	code       TEXT PRIMARY KEY,
	total      BIGINT NOT NULL CHECK (total > 0),
	issued     BIGINT NOT NULL DEFAULT 0 CHECK (issued <= total),
	version    BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS coupon_issues (
	code      TEXT NOT NULL REFERENCES coupons(code),
	user_id   TEXT NOT NULL,
	issued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (code, user_id)
);`

// Database implements repository.Database on a pgx pool.
type Database struct {
	pool   *pgxpool.Pool
	logger *observability.SLogger
}

var _ repository.Database = (*Database)(nil)

// New connects a pool and optionally bootstraps the schema.
func New(ctx context.Context, cfg *PostgresConfig, logger *observability.SLogger) (*Database, error) {
	if cfg == nil {
		cfg = NewPostgresConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, store.Unreachable("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, store.Unreachable("ping", err)
	}

	db := &Database{pool: pool, logger: logger.Named("postgres")}
	if cfg.EnsureSchema {
		if err := db.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return db, nil
}

// EnsureSchema creates the tables if they do not exist.
func (d *Database) EnsureSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Begin implements repository.Database.
func (d *Database) Begin(ctx context.Context) (repository.Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, store.Unreachable("begin", err)
	}
	return &Tx{tx: tx}, nil
}

// Close closes the pool.
func (d *Database) Close() {
	d.pool.Close()
}

// Tx implements repository.Tx on a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return translate("commit", err)
	}
	return nil
}

// Rollback is safe to call after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return translate("rollback", err)
	}
	return nil
}

func (t *Tx) Balances() repository.BalanceRepository { return balanceRepo{t.tx} }

func (t *Tx) Coupons() repository.CouponRepository { return couponRepo{t.tx} }

// translate maps driver errors onto the store taxonomy.
func translate(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrKeyNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w: %w", op, store.ErrKeyModified, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return store.Unreachable(op, err)
}

// versionMiss distinguishes a stale version from a missing row after an
// UPDATE matched nothing.
func versionMiss(ctx context.Context, tx pgx.Tx, query, id string) error {
	var one int
	err := tx.QueryRow(ctx, query, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrKeyNotFound
	}
	if err != nil {
		return translate("version check", err)
	}
	return store.ErrKeyModified
}

type balanceRepo struct{ tx pgx.Tx }

func (r balanceRepo) FindByID(ctx context.Context, userID string) (*domain.Balance, error) {
	b := domain.Balance{UserID: userID}
	err := r.tx.QueryRow(ctx,
		`SELECT points, version, updated_at FROM point_balances WHERE user_id = $1`,
		userID,
	).Scan(&b.Points, &b.Version, &b.UpdatedAt)
	if err != nil {
		return nil, translate("find balance", err)
	}
	return &b, nil
}

func (r balanceRepo) Insert(ctx context.Context, b *domain.Balance) error {
	now := time.Now().UTC()
	tag, err := r.tx.Exec(ctx,
		`INSERT INTO point_balances (user_id, points, version, updated_at)
		 VALUES ($1, $2, 0, $3) ON CONFLICT (user_id) DO NOTHING`,
		b.UserID, b.Points, now,
	)
	if err != nil {
		return translate("insert balance", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrKeyModified
	}
	b.Version = 0
	b.UpdatedAt = now
	return nil
}

func (r balanceRepo) Save(ctx context.Context, b *domain.Balance) error {
	now := time.Now().UTC()
	tag, err := r.tx.Exec(ctx,
		`UPDATE point_balances SET points = $3, version = version + 1, updated_at = $4
		 WHERE user_id = $1 AND version = $2`,
		b.UserID, b.Version, b.Points, now,
	)
	if err != nil {
		return translate("save balance", err)
	}
	if tag.RowsAffected() == 0 {
		return versionMiss(ctx, r.tx, `SELECT 1 FROM point_balances WHERE user_id = $1`, b.UserID)
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

type couponRepo struct{ tx pgx.Tx }

func (r couponRepo) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	c := domain.Coupon{Code: code}
	err := r.tx.QueryRow(ctx,
		`SELECT total, issued, version, updated_at FROM coupons WHERE code = $1`,
		code,
	).Scan(&c.Total, &c.Issued, &c.Version, &c.UpdatedAt)
	if err != nil {
		return nil, translate("find coupon", err)
	}
	return &c, nil
}

func (r couponRepo) Insert(ctx context.Context, c *domain.Coupon) error {
	now := time.Now().UTC()
	tag, err := r.tx.Exec(ctx,
		`INSERT INTO coupons (code, total, issued, version, updated_at)
		 VALUES ($1, $2, $3, 0, $4) ON CONFLICT (code) DO NOTHING`,
		c.Code, c.Total, c.Issued, now,
	)
	if err != nil {
		return translate("insert coupon", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrKeyModified
	}
	c.Version = 0
	c.UpdatedAt = now
	return nil
}

func (r couponRepo) Save(ctx context.Context, c *domain.Coupon) error {
	now := time.Now().UTC()
	tag, err := r.tx.Exec(ctx,
		`UPDATE coupons SET total = $3, issued = $4, version = version + 1, updated_at = $5
		 WHERE code = $1 AND version = $2`,
		c.Code, c.Version, c.Total, c.Issued, now,
	)
	if err != nil {
		return translate("save coupon", err)
	}
	if tag.RowsAffected() == 0 {
		return versionMiss(ctx, r.tx, `SELECT 1 FROM coupons WHERE code = $1`, c.Code)
	}
	c.Version++
	c.UpdatedAt = now
	return nil
}

func (r couponRepo) HasIssue(ctx context.Context, code, userID string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM coupon_issues WHERE code = $1 AND user_id = $2)`,
		code, userID,
	).Scan(&exists)
	if err != nil {
		return false, translate("has issue", err)
	}
	return exists, nil
}

func (r couponRepo) AddIssue(ctx context.Context, issue domain.CouponIssue) error {
	if issue.IssuedAt.IsZero() {
		issue.IssuedAt = time.Now().UTC()
	}
	_, err := r.tx.Exec(ctx,
		`INSERT INTO coupon_issues (code, user_id, issued_at) VALUES ($1, $2, $3)`,
		issue.Code, issue.UserID, issue.IssuedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrCouponAlreadyIssued
		}
		return translate("add issue", err)
	}
	return nil
}
