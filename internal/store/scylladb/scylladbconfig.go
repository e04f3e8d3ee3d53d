// internal/store/scylladb/scylladbconfig.go
package scylladb

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

// ScyllaDBConfig configures the ScyllaDB lock store
type ScyllaDBConfig struct {
	Host              string        `yaml:"host" mapstructure:"host"`
	Port              int32         `yaml:"port" mapstructure:"port"`
	Keyspace          string        `yaml:"keyspace" mapstructure:"keyspace"`
	Table             string        `yaml:"table" mapstructure:"table"`
	TTL               time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Consistency       string        `yaml:"consistency" mapstructure:"consistency"`
	ReplicationFactor int           `yaml:"replicationFactor" mapstructure:"replicationFactor"`
	Endpoints         []string      `yaml:"endpoints" mapstructure:"endpoints"`
}

// NewScyllaDBConfig creates a new ScyllaDB configuration with default values
func NewScyllaDBConfig() *ScyllaDBConfig {
	return &ScyllaDBConfig{
		Host:              "127.0.0.1",
		Port:              9042,
		Keyspace:          "quorum_guard",
		Table:             "locks",
		TTL:               15 * time.Second,
		Consistency:       "CONSISTENCY_QUORUM",
		ReplicationFactor: 3,
	}
}

func (c *ScyllaDBConfig) GetTableName() string {
	return c.Table
}

func (c *ScyllaDBConfig) GetTTL() time.Duration {
	return c.TTL
}

func (c *ScyllaDBConfig) GetEndpoints() []string {
	return c.Endpoints
}

// Validate ensures the ScyllaDB configuration is valid
func (c *ScyllaDBConfig) Validate() error {
	var errs []string
	if c.Host == "" {
		errs = append(errs, "host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.Keyspace == "" {
		errs = append(errs, "keyspace is required")
	}
	if c.Table == "" {
		errs = append(errs, "table is required")
	}
	if c.TTL < time.Second {
		errs = append(errs, "TTL must be at least one second")
	}
	if c.ReplicationFactor < 0 {
		errs = append(errs, "replication factor must be non-negative")
	}
	if _, err := parseConsistency(c.Consistency); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return errors.New("store validation failed: " + strings.Join(errs, "; "))
	}
	return nil
}

// parseConsistency converts a configured consistency name to gocql.Consistency.
// Empty means quorum.
func parseConsistency(c string) (gocql.Consistency, error) {
	switch c {
	case "", "CONSISTENCY_QUORUM":
		return gocql.Quorum, nil
	case "CONSISTENCY_LOCAL_QUORUM":
		return gocql.LocalQuorum, nil
	case "CONSISTENCY_ONE":
		return gocql.One, nil
	case "CONSISTENCY_ALL":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unknown consistency %q", c)
	}
}
