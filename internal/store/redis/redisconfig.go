// internal/store/redis/redisconfig.go
package redis

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avivl/quorum-guard/internal/store"
)

const (
	defaultHost      = "localhost"
	defaultPort      = 6379
	defaultTTL       = 15 * time.Second
	defaultKeyPrefix = ""
	defaultTableName = "locks"
)

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Host      string        `yaml:"host" mapstructure:"host"`
	Port      int           `yaml:"port" mapstructure:"port"`
	Password  string        `yaml:"password" mapstructure:"password"`
	DB        int           `yaml:"db" mapstructure:"db"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"keyPrefix" mapstructure:"keyPrefix"`
	TableName string        `yaml:"table" mapstructure:"table"`
	Endpoints []string      `yaml:"endpoints" mapstructure:"endpoints"`
}

// NewRedisConfig creates a new Redis configuration with default values
func NewRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:      defaultHost,
		Port:      defaultPort,
		TTL:       defaultTTL,
		KeyPrefix: defaultKeyPrefix,
		TableName: defaultTableName,
		Endpoints: []string{},
	}
}

// Validate applies defaults to unset fields and rejects invalid ones
func (c *RedisConfig) Validate() error {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.TTL == 0 {
		c.TTL = defaultTTL
	}
	if c.TableName == "" {
		c.TableName = defaultTableName
	}

	var errs []string
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.TTL < 0 {
		errs = append(errs, "TTL must be positive")
	}
	if c.DB < 0 {
		errs = append(errs, "DB number must be non-negative")
	}
	for i, ep := range c.Endpoints {
		if ep == "" {
			errs = append(errs, fmt.Sprintf("endpoint %d: address cannot be empty", i))
		}
	}

	if len(errs) > 0 {
		return errors.New("store validation failed: " + strings.Join(errs, "; "))
	}
	return nil
}

// Address returns host:port for the primary node
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// String omits the password
func (c *RedisConfig) String() string {
	return fmt.Sprintf(
		"RedisConfig{Host: %s, Port: %d, DB: %d, TTL: %s, KeyPrefix: %q}",
		c.Host, c.Port, c.DB, c.TTL, c.KeyPrefix,
	)
}

// Clone creates a deep copy of the Redis configuration
func (c *RedisConfig) Clone() store.StoreConfig {
	endpoints := make([]string, len(c.Endpoints))
	copy(endpoints, c.Endpoints)

	return &RedisConfig{
		Host:      c.Host,
		Port:      c.Port,
		Password:  c.Password,
		DB:        c.DB,
		TTL:       c.TTL,
		KeyPrefix: c.KeyPrefix,
		TableName: c.TableName,
		Endpoints: endpoints,
	}
}

// GetTableName returns the logical namespace name. Redis has no tables.
func (c *RedisConfig) GetTableName() string {
	if c.TableName == "" {
		return defaultTableName
	}
	return c.TableName
}

// GetTTL returns the default lease
func (c *RedisConfig) GetTTL() time.Duration {
	if c.TTL == 0 {
		return defaultTTL
	}
	return c.TTL
}

// GetEndpoints returns the configured endpoints, falling back to the host
func (c *RedisConfig) GetEndpoints() []string {
	if len(c.Endpoints) > 0 {
		return c.Endpoints
	}
	if c.Host == "" {
		return []string{}
	}
	return []string{c.Host}
}

// GetType returns the registered store name
func (c *RedisConfig) GetType() string {
	return StoreName
}
