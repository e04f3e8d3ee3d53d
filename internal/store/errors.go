// internal/store/errors.go
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotReachable is returned when the backing store cannot be reached for issuing common store operations.
	ErrNotReachable = errors.New("store not reachable")
	// ErrCannotLock is returned when a lock is held by another owner and could not be acquired.
	ErrCannotLock = errors.New("lock busy")
	// ErrKeyModified is returned during an atomic operation if the version does not match the one in the store.
	ErrKeyModified = errors.New("unable to complete atomic operation, version conflict")
	// ErrKeyNotFound is returned when the key is not found in the store.
	ErrKeyNotFound = errors.New("key not found in store")
	// ErrInvalidKey is returned for empty keys or patterns.
	ErrInvalidKey = errors.New("invalid key")
)

// Unreachable wraps a backend failure so callers can classify it with errors.Is(err, ErrNotReachable).
// Context cancellation is passed through untouched.
func Unreachable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrNotReachable, err)
}

// InvalidConfigurationError is returned when the type of the configuration is not supported by a store.
type InvalidConfigurationError struct {
	Store  string
	Config any
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("%s: invalid configuration type: %T", e.Store, e.Config)
}

// UnknownConstructorError is returned when a requested store is not registered.
type UnknownConstructorError struct {
	Store string
}

func (e UnknownConstructorError) Error() string {
	return fmt.Sprintf("unknown constructor %q (forgotten import?)", e.Store)
}
