// internal/coupon/coupon.go
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avivl/quorum-guard/internal/cache"
	"github.com/avivl/quorum-guard/internal/domain"
	"github.com/avivl/quorum-guard/internal/lockservice"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/optimistic"
	"github.com/avivl/quorum-guard/internal/repository"
	"github.com/avivl/quorum-guard/internal/retry"
	"github.com/avivl/quorum-guard/internal/store"
	"github.com/avivl/quorum-guard/internal/uow"
)

// Config tunes the guarded coupon operations.
type Config struct {
	Policy   retry.Policy               `yaml:"retry" mapstructure:"retry"`
	Lock     lockservice.AcquireOptions `yaml:"lock" mapstructure:"lock"`
	CacheTTL time.Duration              `yaml:"cacheTTL" mapstructure:"cacheTTL"`
}

// DefaultConfig returns defaults tuned for a flash drop: many short retries.
func DefaultConfig() Config {
	return Config{
		Policy: retry.Policy{
			MaxRetries: 10,
			RetryDelay: 20 * time.Millisecond,
			Backoff:    retry.BackoffExponential,
			MaxDelay:   500 * time.Millisecond,
		},
		Lock:     lockservice.DefaultAcquireOptions,
		CacheTTL: 60 * time.Second,
	}
}

// LockKey is lock:coupon:<code>.
func LockKey(code string) string {
	return lockservice.Key("coupon", code)
}

// CacheKey is coupon:<code>.
func CacheKey(code string) string {
	return "coupon:" + code
}

// Service implements coupon creation, issuance and lookup.
type Service struct {
	db       repository.Database
	cache    cache.Cache[domain.Coupon]
	cacheTTL time.Duration
	create   *optimistic.Controller[string, repository.Tx]
	issue    *optimistic.Controller[string, repository.Tx]
	logger   *observability.SLogger
}

// New wires the coupon operations.
func New(
	db repository.Database,
	locks uow.Locker,
	coupons cache.Cache[domain.Coupon],
	cfg Config,
	logger *observability.SLogger,
	metrics observability.MetricsClient,
) (*Service, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if coupons == nil {
		return nil, errors.New("cache is required")
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}

	coord, err := uow.New[repository.Tx](locks, db.Begin, logger)
	if err != nil {
		return nil, err
	}
	create, err := optimistic.New(optimistic.Config[string]{
		Name: "create_coupon", Key: LockKey, Policy: cfg.Policy, Lock: cfg.Lock,
	}, coord, logger, metrics)
	if err != nil {
		return nil, err
	}
	issue, err := optimistic.New(optimistic.Config[string]{
		Name: "issue_coupon", Key: LockKey, Policy: cfg.Policy, Lock: cfg.Lock,
	}, coord, logger, metrics)
	if err != nil {
		return nil, err
	}

	return &Service{
		db:       db,
		cache:    coupons,
		cacheTTL: cfg.CacheTTL,
		create:   create,
		issue:    issue,
		logger:   logger.Named("coupon"),
	}, nil
}

// CreateCoupon registers a coupon with total units of inventory.
func (s *Service) CreateCoupon(ctx context.Context, code string, total int64) (*domain.Coupon, error) {
	c, err := domain.NewCoupon(code, total)
	if err != nil {
		return nil, err
	}

	err = s.create.Execute(ctx, c.Code, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Coupons().FindByCode(ctx, c.Code)
		if err == nil {
			return domain.ErrCouponExists
		}
		if !errors.Is(err, store.ErrKeyNotFound) {
			return err
		}
		return tx.Coupons().Insert(ctx, c)
	}, s.invalidate(c.Code))
	if err != nil {
		return nil, err
	}

	s.logger.InfoCtx(ctx, "coupon created", "code", c.Code, "total", c.Total)
	return c, nil
}

// IssueCoupon hands one unit of code to userID. Each user receives a code at most once.
func (s *Service) IssueCoupon(ctx context.Context, code, userID string) (*domain.CouponIssue, error) {
	code = strings.TrimSpace(code)
	if err := store.ValidateKey(code); err != nil {
		return nil, fmt.Errorf("coupon code: %w", err)
	}
	userID = strings.TrimSpace(userID)
	if err := store.ValidateKey(userID); err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}

	var issued domain.CouponIssue
	var remaining int64
	err := s.issue.Execute(ctx, code, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.Coupons().FindByCode(ctx, code)
		if errors.Is(err, store.ErrKeyNotFound) {
			return domain.ErrCouponNotFound
		}
		if err != nil {
			return err
		}

		has, err := tx.Coupons().HasIssue(ctx, code, userID)
		if err != nil {
			return err
		}
		if has {
			return domain.ErrCouponAlreadyIssued
		}

		if err := c.Issue(); err != nil {
			return err
		}
		if err := tx.Coupons().Save(ctx, c); err != nil {
			return err
		}

		issued = domain.CouponIssue{Code: code, UserID: userID, IssuedAt: time.Now().UTC()}
		remaining = c.Remaining()
		return tx.Coupons().AddIssue(ctx, issued)
	}, s.invalidate(code))
	if err != nil {
		return nil, err
	}

	s.logger.InfoCtx(ctx, "coupon issued", "code", code, "user", userID, "remaining", remaining)
	return &issued, nil
}

// GetCoupon reads through the cache.
func (s *Service) GetCoupon(ctx context.Context, code string) (domain.Coupon, error) {
	code = strings.TrimSpace(code)
	if err := store.ValidateKey(code); err != nil {
		return domain.Coupon{}, err
	}
	return cache.ReadThrough(ctx, s.cache, CacheKey(code), s.cacheTTL, func(ctx context.Context) (domain.Coupon, error) {
		var c domain.Coupon
		err := repository.View(ctx, s.db, func(tx repository.Tx) error {
			found, err := tx.Coupons().FindByCode(ctx, code)
			if errors.Is(err, store.ErrKeyNotFound) {
				return domain.ErrCouponNotFound
			}
			if err != nil {
				return err
			}
			c = *found
			return nil
		})
		return c, err
	})
}

func (s *Service) invalidate(code string) func(context.Context) {
	return func(ctx context.Context) {
		if err := s.cache.Invalidate(ctx, CacheKey(code)); err != nil {
			s.logger.WarnCtx(ctx, "coupon invalidation failed", "code", code, "error", err)
		}
	}
}
