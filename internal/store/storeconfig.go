// internal/store/storeconfig.go
package store

import "time"

// StoreConfig is implemented by every backend configuration.
type StoreConfig interface {
	GetTableName() string
	GetTTL() time.Duration
	GetEndpoints() []string

	Validate() error
}

// ResolveTTL returns ttl when positive, otherwise the fallback.
func ResolveTTL(ttl, fallback time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return fallback
}
