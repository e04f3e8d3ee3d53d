// internal/store/memory/memory.go
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/avivl/quorum-guard/internal/lockservice"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/store"
)

// StoreName is the registered name of the in-process store
const StoreName = "memory"

func init() {
	lockservice.Register(StoreName, newStore)
}

func newStore(_ context.Context, options lockservice.Config, _ *observability.SLogger) (store.LockStore, error) {
	cfg, ok := options.(*MemoryConfig)
	if !ok && options != nil {
		return nil, &store.InvalidConfigurationError{Store: StoreName, Config: options}
	}
	return New(cfg)
}

type entry struct {
	token     string
	expiresAt time.Time
}

// Store is a LockStore kept in process memory. Expiry is evaluated lazily on
// every access, so an expired entry is indistinguishable from an absent one.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	config  *MemoryConfig
	now     func() time.Time
}

// New creates a memory store. A nil config uses defaults.
func New(cfg *MemoryConfig) (*Store, error) {
	if cfg == nil {
		cfg = NewMemoryConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		entries: make(map[string]entry),
		config:  cfg,
		now:     time.Now,
	}, nil
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (s *Store) live(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

// TrySet implements store.LockStore.
func (s *Store) TrySet(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.live(key); held {
		return false, nil
	}
	s.entries[key] = entry{
		token:     token,
		expiresAt: s.now().Add(store.ResolveTTL(ttl, s.config.TTL)),
	}
	return true, nil
}

// DeleteIfOwned implements store.LockStore.
func (s *Store) DeleteIfOwned(ctx context.Context, key, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, held := s.live(key)
	if !held || e.token != token {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// Get implements store.LockStore.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, held := s.live(key)
	return e.token, held, nil
}

// DeleteMatching implements store.LockStore.
func (s *Store) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := store.ValidateKey(pattern); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key := range s.entries {
		if _, held := s.live(key); !held {
			continue
		}
		if store.MatchPattern(pattern, key) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

// GetConfig returns the current store configuration
func (s *Store) GetConfig() store.StoreConfig {
	return s.config
}

// Close drops every entry.
func (s *Store) Close() {
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
}
