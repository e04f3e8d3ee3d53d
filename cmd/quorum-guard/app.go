// cmd/quorum-guard/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avivl/quorum-guard/internal/cache"
	"github.com/avivl/quorum-guard/internal/config"
	"github.com/avivl/quorum-guard/internal/coupon"
	"github.com/avivl/quorum-guard/internal/domain"
	"github.com/avivl/quorum-guard/internal/lockservice"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/points"
	"github.com/avivl/quorum-guard/internal/repository"
	repomemory "github.com/avivl/quorum-guard/internal/repository/memory"
	"github.com/avivl/quorum-guard/internal/repository/postgres"
	"github.com/avivl/quorum-guard/internal/store"
	goredis "github.com/redis/go-redis/v9"

	// lock store constructors register themselves
	_ "github.com/avivl/quorum-guard/internal/store/dynamodb"
	_ "github.com/avivl/quorum-guard/internal/store/memory"
	_ "github.com/avivl/quorum-guard/internal/store/redis"
	_ "github.com/avivl/quorum-guard/internal/store/scylladb"
)

// App holds every wired component for one CLI invocation
type App struct {
	cfg          *config.GlobalConfig[store.StoreConfig]
	logger       *observability.SLogger
	metrics      observability.MetricsClient
	configLoader *config.ConfigLoader
	otelShutdown func()
	metricsSrv   *http.Server

	lockStore store.LockStore
	locks     *lockservice.Service
	db        repository.Database
	closers   []func()

	points  *points.Service
	coupons *coupon.Service
}

// NewApp loads configuration from configPath and wires the services
func NewApp(ctx context.Context, configPath string) (*App, error) {
	bootLogger, err := observability.NewLogger(observability.LogLevelInfo.GetZapLevel())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	loader, cfg, err := config.Load(configPath, bootLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger.Level.GetZapLevel())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, configLoader: loader}
	if err := a.init(ctx); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg

	otelShutdown, err := observability.InitProvider(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.otelShutdown = otelShutdown

	if err := a.initMetrics(); err != nil {
		return err
	}

	a.lockStore, err = lockservice.NewStore(ctx, cfg.Backend.Type, cfg.Store, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create %s lock store: %w", cfg.Backend.Type, err)
	}
	a.closers = append(a.closers, a.lockStore.Close)

	a.locks, err = lockservice.New(a.lockStore,
		lockservice.WithLogger(a.logger),
		lockservice.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}

	if err := a.initDatabase(ctx); err != nil {
		return err
	}

	balances, coupons, err := a.initCaches()
	if err != nil {
		return err
	}

	a.points, err = points.New(a.db, a.locks, balances, cfg.Points, a.logger, a.metrics)
	if err != nil {
		return fmt.Errorf("failed to create points service: %w", err)
	}
	a.coupons, err = coupon.New(a.db, a.locks, coupons, cfg.Coupon, a.logger, a.metrics)
	if err != nil {
		return fmt.Errorf("failed to create coupon service: %w", err)
	}

	a.configLoader.AddWatcher(func(newConfig any) {
		if _, ok := newConfig.(*config.GlobalConfig[store.StoreConfig]); !ok {
			a.logger.Error("Invalid configuration type received")
			return
		}
		// retry budgets and leases are fixed at startup
		a.logger.Info("Configuration updated, restart to apply")
	})
	a.configLoader.Watch()

	a.logger.Infow("quorum-guard ready",
		"backend", cfg.Backend.Type,
		"database", cfg.Database.Type,
		"cache", cfg.Cache.Type,
		"metrics", cfg.Metrics.Backend,
	)
	return nil
}

func (a *App) initMetrics() error {
	switch a.cfg.Metrics.Backend {
	case observability.MetricsBackendOTel:
		m, err := observability.NewMetricsClient(a.cfg.Observability, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create metrics client: %w", err)
		}
		a.metrics = m
	case observability.MetricsBackendPrometheus:
		m := observability.NewPromMetrics(a.logger)
		a.metrics = m
		if addr := a.cfg.Metrics.ListenAddress; addr != "" {
			a.serveMetrics(addr, m.Handler())
		}
	default:
		a.metrics = observability.NoopMetrics{}
	}
	return nil
}

func (a *App) serveMetrics(addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	a.metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Infow("serving metrics", "address", addr)
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorw("metrics server stopped", "error", err)
		}
	}()
}

func (a *App) initDatabase(ctx context.Context) error {
	switch a.cfg.Database.Type {
	case "postgres":
		db, err := postgres.New(ctx, &a.cfg.Database.Postgres, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.db = db
	default:
		a.db = repomemory.New()
	}
	a.closers = append(a.closers, a.db.Close)
	return nil
}

func (a *App) initCaches() (cache.Cache[domain.Balance], cache.Cache[domain.Coupon], error) {
	c := a.cfg.Cache
	if c.Type == "redis" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     c.Address,
			Password: c.Password,
			DB:       c.DB,
		})
		a.closers = append(a.closers, func() { _ = client.Close() })
		return cache.NewResilient[domain.Balance](cache.NewRedis[domain.Balance](client, nil, c.KeyPrefix), a.logger, a.metrics),
			cache.NewResilient[domain.Coupon](cache.NewRedis[domain.Coupon](client, nil, c.KeyPrefix), a.logger, a.metrics),
			nil
	}

	balances, err := cache.NewRistretto[domain.Balance](c.MaxEntries)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create balance cache: %w", err)
	}
	a.closers = append(a.closers, balances.Close)
	coupons, err := cache.NewRistretto[domain.Coupon](c.MaxEntries)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create coupon cache: %w", err)
	}
	a.closers = append(a.closers, coupons.Close)
	return cache.NewResilient[domain.Balance](balances, a.logger, a.metrics),
		cache.NewResilient[domain.Coupon](coupons, a.logger, a.metrics),
		nil
}

// Admin returns the bulk lock administration handle; only ops commands use it
func (a *App) Admin() (*lockservice.Admin, error) {
	return lockservice.NewAdmin(a.lockStore, a.logger)
}

// Shutdown releases every resource in reverse order of acquisition
func (a *App) Shutdown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.logger.Errorw("error stopping metrics server", "error", err)
		}
	}
	if a.otelShutdown != nil {
		a.otelShutdown()
	}
	_ = a.logger.Sync()
}
