// internal/config/config.go
// Package config loads the application configuration and watches it for changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/avivl/quorum-guard/internal/coupon"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/points"
	"github.com/avivl/quorum-guard/internal/repository/postgres"
	"github.com/avivl/quorum-guard/internal/store"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "QUORUMGUARD"

// ConfigLoadFn loads a specific store configuration from viper
type ConfigLoadFn[T store.StoreConfig] func(*viper.Viper) (T, error)

// ConfigLoader holds the viper instance and notifies watchers on reload
type ConfigLoader struct {
	v      *viper.Viper
	logger *observability.SLogger
	reload func() (any, error)

	mu            sync.RWMutex
	watchers      []func(any)
	currentConfig any
	lastError     error
}

// NewConfigLoader creates a loader reading configPath, which may be a file
// or a directory containing one of the known config file names.
func NewConfigLoader(configPath string, logger *observability.SLogger) *ConfigLoader {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if file, err := resolveConfigFilePath(configPath); err == nil {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		if configPath != "" {
			v.AddConfigPath(configPath)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigLoader{v: v, logger: logger.Named("config")}
}

// Viper exposes the underlying viper instance
func (cl *ConfigLoader) Viper() *viper.Viper {
	return cl.v
}

// AddWatcher adds a callback invoked with the new *GlobalConfig after each successful reload
func (cl *ConfigLoader) AddWatcher(callback func(any)) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.watchers = append(cl.watchers, callback)
}

// GetCurrentConfig returns the current configuration
func (cl *ConfigLoader) GetCurrentConfig() any {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.currentConfig
}

// GetLastError returns the error of the last failed reload, if any
func (cl *ConfigLoader) GetLastError() error {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.lastError
}

// Watch starts reloading the configuration whenever the file changes.
// A reload that fails validation keeps the previous configuration.
func (cl *ConfigLoader) Watch() {
	if cl.reload == nil || cl.v.ConfigFileUsed() == "" {
		return
	}
	cl.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cl.logger.Infow("config file changed", "file", e.Name)

		newConfig, err := cl.reload()
		if err != nil {
			cl.logger.Errorw("error reloading configuration", "error", err)
			cl.mu.Lock()
			cl.lastError = err
			cl.mu.Unlock()
			return
		}

		cl.mu.Lock()
		cl.currentConfig = newConfig
		cl.lastError = nil
		watchers := append([]func(any){}, cl.watchers...)
		cl.mu.Unlock()

		for _, watcher := range watchers {
			watcher(newConfig)
		}
	})
	cl.v.WatchConfig()
}

// LoadConfig loads the complete application configuration including store config
func LoadConfig[T store.StoreConfig](configPath string, loadFn ConfigLoadFn[T], logger *observability.SLogger) (*ConfigLoader, *GlobalConfig[T], error) {
	cl := NewConfigLoader(configPath, logger)
	setDefaults(cl.v)

	if err := cl.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
		cl.logger.Infow("no config file found, using defaults and environment variables", "path", configPath)
	}

	config, err := loadConfiguration(cl.v, loadFn)
	if err != nil {
		return nil, nil, err
	}

	cl.reload = func() (any, error) {
		return loadConfiguration(cl.v, loadFn)
	}
	cl.mu.Lock()
	cl.currentConfig = config
	cl.mu.Unlock()

	return cl, config, nil
}

// Load detects the backend and loads the matching store configuration.
func Load(configPath string, logger *observability.SLogger) (*ConfigLoader, *GlobalConfig[store.StoreConfig], error) {
	backend, err := DetectBackendType(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, ErrNoBackendType) {
			return nil, nil, err
		}
		backend = "memory"
	}

	loadFn, err := StoreConfigLoader(backend)
	if err != nil {
		return nil, nil, err
	}
	cl, cfg, err := LoadConfig(configPath, loadFn, logger)
	if err != nil {
		return nil, nil, err
	}
	cfg.Backend.Type = normalizeBackendType(backend)
	return cl, cfg, nil
}

// loadConfiguration loads configuration using the provided loader function
func loadConfiguration[T store.StoreConfig](v *viper.Viper, loadFn ConfigLoadFn[T]) (*GlobalConfig[T], error) {
	storeConfig, err := loadFn(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load store config: %w", err)
	}

	config := &GlobalConfig[T]{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode global config: %w", err)
	}
	config.Store = storeConfig

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates all configuration sections
func validateConfig[T store.StoreConfig](cfg *GlobalConfig[T]) error {
	if err := cfg.Store.Validate(); err != nil {
		return fmt.Errorf("store configuration error: %w", err)
	}

	if cfg.Observability.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.Observability.TracingEnabled && cfg.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when tracing is enabled")
	}

	switch cfg.Database.Type {
	case "memory":
	case "postgres":
		if err := cfg.Database.Postgres.Validate(); err != nil {
			return fmt.Errorf("database configuration error: %w", err)
		}
	default:
		return fmt.Errorf("unknown database type %q", cfg.Database.Type)
	}

	switch cfg.Cache.Type {
	case "ristretto":
	case "redis":
		if cfg.Cache.Address == "" {
			return fmt.Errorf("cache address is required for redis")
		}
	default:
		return fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}

	switch cfg.Metrics.Backend {
	case observability.MetricsBackendNone, observability.MetricsBackendOTel, observability.MetricsBackendPrometheus:
	default:
		return fmt.Errorf("unknown metrics backend %q", cfg.Metrics.Backend)
	}

	if err := cfg.Points.Policy.Validate(); err != nil {
		return fmt.Errorf("points retry policy: %w", err)
	}
	if err := cfg.Coupon.Policy.Validate(); err != nil {
		return fmt.Errorf("coupon retry policy: %w", err)
	}
	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.type", "memory")

	// OpenTelemetry defaults
	v.SetDefault("observability.serviceName", "quorum-guard")
	v.SetDefault("observability.serviceVersion", "0.1.0")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.otelEndpoint", "localhost:4317")
	v.SetDefault("observability.tracingEnabled", false)

	v.SetDefault("logger.level", string(observability.LogLevelInfo))

	v.SetDefault("metrics.backend", string(observability.MetricsBackendNone))
	v.SetDefault("metrics.listenAddress", "")

	pg := postgres.NewPostgresConfig()
	v.SetDefault("database.type", "memory")
	v.SetDefault("database.postgres.dsn", pg.DSN)
	v.SetDefault("database.postgres.maxConns", pg.MaxConns)
	v.SetDefault("database.postgres.minConns", pg.MinConns)
	v.SetDefault("database.postgres.maxConnLifetime", pg.MaxConnLifetime)
	v.SetDefault("database.postgres.connectTimeout", pg.ConnectTimeout)
	v.SetDefault("database.postgres.ensureSchema", pg.EnsureSchema)

	v.SetDefault("cache.type", "ristretto")
	v.SetDefault("cache.maxEntries", 1<<16)
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.keyPrefix", "quorum-guard:cache")

	setOperationDefaults(v, "points", points.DefaultConfig())
	setOperationDefaults(v, "coupon", points.Config(coupon.DefaultConfig()))
}

// setOperationDefaults covers points.Config and the identically shaped coupon.Config.
func setOperationDefaults(v *viper.Viper, section string, cfg points.Config) {
	v.SetDefault(section+".retry.maxRetries", cfg.Policy.MaxRetries)
	v.SetDefault(section+".retry.retryDelay", cfg.Policy.RetryDelay)
	v.SetDefault(section+".retry.backoff", string(cfg.Policy.Backoff))
	v.SetDefault(section+".retry.maxDelay", cfg.Policy.MaxDelay)
	v.SetDefault(section+".lock.ttl", cfg.Lock.TTL)
	v.SetDefault(section+".lock.retryCount", cfg.Lock.RetryCount)
	v.SetDefault(section+".lock.retryDelay", cfg.Lock.RetryDelay)
	v.SetDefault(section+".cacheTTL", cfg.CacheTTL)
}
