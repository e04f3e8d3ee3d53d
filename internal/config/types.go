// internal/config/types.go
package config

import (
	"github.com/avivl/quorum-guard/internal/coupon"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/points"
	"github.com/avivl/quorum-guard/internal/repository/postgres"
	"github.com/avivl/quorum-guard/internal/store"
)

// GlobalConfig represents the application configuration with generic store config
type GlobalConfig[T store.StoreConfig] struct {
	Backend       BackendConfig               `yaml:"backend" mapstructure:"backend"`
	Store         T                           `yaml:"-" mapstructure:"-"`
	Database      DatabaseConfig              `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig                 `yaml:"cache" mapstructure:"cache"`
	Points        points.Config               `yaml:"points" mapstructure:"points"`
	Coupon        coupon.Config               `yaml:"coupon" mapstructure:"coupon"`
	Logger        observability.LoggerConfig  `yaml:"logger" mapstructure:"logger"`
	Observability observability.Config        `yaml:"observability" mapstructure:"observability"`
	Metrics       observability.MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// BackendConfig represents the backend configuration section
type BackendConfig struct {
	Type string `yaml:"type" mapstructure:"type"`
}

// DatabaseConfig selects the authoritative store.
type DatabaseConfig struct {
	// Type is "memory" or "postgres".
	Type     string                  `yaml:"type" mapstructure:"type"`
	Postgres postgres.PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// CacheConfig selects the read cache.
type CacheConfig struct {
	// Type is "ristretto" or "redis".
	Type       string `yaml:"type" mapstructure:"type"`
	MaxEntries int64  `yaml:"maxEntries" mapstructure:"maxEntries"`
	Address    string `yaml:"address" mapstructure:"address"`
	Password   string `yaml:"password" mapstructure:"password"`
	DB         int    `yaml:"db" mapstructure:"db"`
	KeyPrefix  string `yaml:"keyPrefix" mapstructure:"keyPrefix"`
}

// RootConfig is the minimal shape read by DetectBackendType
type RootConfig struct {
	Backend BackendConfig `yaml:"backend"`
}
