// internal/store/store.go
package store

import (
	"path"
	"strings"
)

// LockNamespace prefixes every lock key.
const LockNamespace = "lock"

// LockKey builds the stable lock key for a resource: lock:<resource-type>:<resource-id>.
func LockKey(resourceType, resourceID string) string {
	return LockNamespace + ":" + resourceType + ":" + resourceID
}

// ValidateKey rejects empty keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}

// MatchPattern reports whether key matches a Redis style glob pattern.
// Unlike path.Match, '*' also spans '/' separators.
func MatchPattern(pattern, key string) bool {
	if pattern == "*" {
		return true
	}
	const sep = "\x00"
	ok, err := path.Match(strings.ReplaceAll(pattern, "/", sep), strings.ReplaceAll(key, "/", sep))
	return err == nil && ok
}

// PatternPrefix returns the literal prefix of a glob pattern, up to the first wildcard.
func PatternPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?[\\"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}
