// internal/points/points.go
package points

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

// DefaultCacheTTL bounds how long a missed invalidation can serve a stale balance.
const DefaultCacheTTL = 300 * time.Second

// Config tunes the guarded point operations.
type Config struct {
	Policy   retry.Policy               `yaml:"retry" mapstructure:"retry"`
	Lock     lockservice.AcquireOptions `yaml:"lock" mapstructure:"lock"`
	CacheTTL time.Duration              `yaml:"cacheTTL" mapstructure:"cacheTTL"`
}

// DefaultConfig returns the defaults: 5s lease, three whole-operation retries.
func DefaultConfig() Config {
	return Config{
		Policy:   retry.DefaultPolicy,
		Lock:     lockservice.DefaultAcquireOptions,
		CacheTTL: DefaultCacheTTL,
	}
}

// LockKey is lock:user:<id>.
func LockKey(userID string) string {
	return lockservice.Key("user", userID)
}

// CacheKey is points:<id>.
func CacheKey(userID string) string {
	return "points:" + userID
}

// Service implements charge, use and balance lookups.
type Service struct {
	db       repository.Database
	cache    cache.Cache[domain.Balance]
	cacheTTL time.Duration
	charge   *optimistic.Controller[string, repository.Tx]
	use      *optimistic.Controller[string, repository.Tx]
	logger   *observability.SLogger
}

// New wires the point operations. Cache failures never fail an operation.
func New(
	db repository.Database,
	locks uow.Locker,
	balances cache.Cache[domain.Balance],
	cfg Config,
	logger *observability.SLogger,
	metrics observability.MetricsClient,
) (*Service, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if balances == nil {
		return nil, errors.New("cache is required")
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	coord, err := uow.New[repository.Tx](locks, db.Begin, logger)
	if err != nil {
		return nil, err
	}
	charge, err := optimistic.New(optimistic.Config[string]{
		Name: "charge_points", Key: LockKey, Policy: cfg.Policy, Lock: cfg.Lock,
	}, coord, logger, metrics)
	if err != nil {
		return nil, err
	}
	use, err := optimistic.New(optimistic.Config[string]{
		Name: "use_points", Key: LockKey, Policy: cfg.Policy, Lock: cfg.Lock,
	}, coord, logger, metrics)
	if err != nil {
		return nil, err
	}

	return &Service{
		db:       db,
		cache:    balances,
		cacheTTL: cfg.CacheTTL,
		charge:   charge,
		use:      use,
		logger:   logger.Named("points"),
	}, nil
}

// ChargePoints adds amount to the user's balance, opening the account on
// first charge.
func (s *Service) ChargePoints(ctx context.Context, userID string, amount int64) (*domain.Balance, error) {
	userID, err := normalize(userID, amount)
	if err != nil {
		return nil, err
	}

	var result *domain.Balance
	err = s.charge.Execute(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.Balances().FindByID(ctx, userID)
		switch {
		case errors.Is(err, store.ErrKeyNotFound):
			b = domain.NewBalance(userID)
			if err := b.Charge(amount); err != nil {
				return err
			}
			if err := tx.Balances().Insert(ctx, b); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := b.Charge(amount); err != nil {
				return err
			}
			if err := tx.Balances().Save(ctx, b); err != nil {
				return err
			}
		}
		result = b
		return nil
	}, s.invalidate(userID))
	if err != nil {
		return nil, err
	}

	s.logger.InfoCtx(ctx, "points charged", "user", userID, "amount", amount, "balance", result.Points, "version", result.Version)
	return result, nil
}

// UsePoints deducts amount from an existing balance.
func (s *Service) UsePoints(ctx context.Context, userID string, amount int64) (*domain.Balance, error) {
	userID, err := normalize(userID, amount)
	if err != nil {
		return nil, err
	}

	var result *domain.Balance
	err = s.use.Execute(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.Balances().FindByID(ctx, userID)
		if errors.Is(err, store.ErrKeyNotFound) {
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		if err := b.Use(amount); err != nil {
			return err
		}
		if err := tx.Balances().Save(ctx, b); err != nil {
			return err
		}
		result = b
		return nil
	}, s.invalidate(userID))
	if err != nil {
		return nil, err
	}

	s.logger.InfoCtx(ctx, "points used", "user", userID, "amount", amount, "balance", result.Points, "version", result.Version)
	return result, nil
}

// GetBalance reads through the cache. It never takes the lock.
func (s *Service) GetBalance(ctx context.Context, userID string) (domain.Balance, error) {
	userID = strings.TrimSpace(userID)
	if err := store.ValidateKey(userID); err != nil {
		return domain.Balance{}, err
	}
	return cache.ReadThrough(ctx, s.cache, CacheKey(userID), s.cacheTTL, func(ctx context.Context) (domain.Balance, error) {
		var b domain.Balance
		err := repository.View(ctx, s.db, func(tx repository.Tx) error {
			found, err := tx.Balances().FindByID(ctx, userID)
			if errors.Is(err, store.ErrKeyNotFound) {
				return domain.ErrAccountNotFound
			}
			if err != nil {
				return err
			}
			b = *found
			return nil
		})
		return b, err
	})
}

// invalidate runs after commit, while the lock is still held.
func (s *Service) invalidate(userID string) func(context.Context) {
	return func(ctx context.Context) {
		if err := s.cache.Invalidate(ctx, CacheKey(userID)); err != nil {
			s.logger.WarnCtx(ctx, "balance invalidation failed", "user", userID, "error", err)
		}
	}
}

// normalize trims userID so that lock, cache and account keys agree.
func normalize(userID string, amount int64) (string, error) {
	userID = strings.TrimSpace(userID)
	if err := store.ValidateKey(userID); err != nil {
		return "", fmt.Errorf("user id: %w", err)
	}
	if amount <= 0 {
		return "", domain.ErrInvalidAmount
	}
	return userID, nil
}
