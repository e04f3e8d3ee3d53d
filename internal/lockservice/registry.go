// internal/lockservice/registry.go
package lockservice

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/store"
)

// Config is the raw store configuration handed to a Constructor.
// Each backend asserts its own concrete type.
type Config any

// Constructor builds a LockStore from its backend configuration.
type Constructor func(ctx context.Context, options Config, logger *observability.SLogger) (store.LockStore, error)

type registry struct {
	mu     sync.RWMutex
	byName map[string]Constructor
}

// backends is filled by the init functions of the store packages.
var backends = &registry{byName: map[string]Constructor{}}

// Register makes a backend available to NewStore under name.
// Registering nil or the same name twice is a programming error and panics.
func Register(name string, cttr Constructor) {
	if cttr == nil {
		panic("lockservice: nil constructor for backend " + name)
	}

	backends.mu.Lock()
	defer backends.mu.Unlock()
	if _, dup := backends.byName[name]; dup {
		panic(fmt.Sprintf("lockservice: backend %q registered twice", name))
	}
	backends.byName[name] = cttr
}

// Unregister removes a backend. Used by tests that register throwaway stores.
func Unregister(name string) {
	backends.mu.Lock()
	delete(backends.byName, name)
	backends.mu.Unlock()
}

// Constructors lists the registered backend names in sorted order.
func Constructors() []string {
	backends.mu.RLock()
	names := make([]string, 0, len(backends.byName))
	for name := range backends.byName {
		names = append(names, name)
	}
	backends.mu.RUnlock()

	slices.Sort(names)
	return names
}

// NewStore builds the LockStore registered under storeName.
func NewStore(ctx context.Context, storeName string, options Config, logger *observability.SLogger) (store.LockStore, error) {
	backends.mu.RLock()
	construct := backends.byName[storeName]
	backends.mu.RUnlock()

	if construct == nil {
		return nil, &store.UnknownConstructorError{Store: storeName}
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return construct(ctx, options, logger)
}
