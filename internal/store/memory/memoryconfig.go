// internal/store/memory/memoryconfig.go
package memory

import (
	"errors"
	"time"
)

// MemoryConfig configures the in-process lock store.
type MemoryConfig struct {
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// NewMemoryConfig creates a configuration with default values
func NewMemoryConfig() *MemoryConfig {
	return &MemoryConfig{TTL: 5 * time.Second}
}

func (c *MemoryConfig) GetTableName() string {
	return "memory"
}

func (c *MemoryConfig) GetTTL() time.Duration {
	return c.TTL
}

func (c *MemoryConfig) GetEndpoints() []string {
	return nil
}

func (c *MemoryConfig) Validate() error {
	if c.TTL <= 0 {
		return errors.New("store validation failed: TTL must be positive")
	}
	return nil
}
