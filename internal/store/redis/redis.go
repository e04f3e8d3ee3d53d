// internal/store/redis/redis.go
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/avivl/quorum-guard/internal/lockservice"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/store"
	"github.com/redis/go-redis/v9"
)

// StoreName is the registered name of the Redis store
const StoreName = "redis"

// ErrConfigOptionMissing is returned when New is called without a config
var ErrConfigOptionMissing = errors.New("Redis requires a config option")

// releaseScript deletes KEYS[1] only while it still holds ARGV[1]
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

const scanBatch = 256

// redisClient is the subset of the go-redis client the store needs
type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// newRedisClientFn can be replaced in tests
var newRedisClientFn = func(cfg *RedisConfig) redisClient {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func init() {
	lockservice.Register(StoreName, newStore)
}

func newStore(ctx context.Context, options lockservice.Config, logger *observability.SLogger) (store.LockStore, error) {
	cfg, ok := options.(*RedisConfig)
	if !ok && options != nil {
		return nil, &store.InvalidConfigurationError{Store: StoreName, Config: options}
	}
	return New(ctx, cfg, logger)
}

// Store implements store.LockStore on Redis. Acquisition is SET NX PX and
// release is a compare-and-delete script, so both are single atomic commands.
type Store struct {
	client    redisClient
	l         *observability.SLogger
	keyPrefix string
	config    *RedisConfig
}

// New creates a Redis store and verifies connectivity
func New(ctx context.Context, config *RedisConfig, logger *observability.SLogger) (*Store, error) {
	if config == nil {
		return nil, ErrConfigOptionMissing
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	client := newRedisClientFn(config)
	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Errorf("Error connecting to Redis: %v", err)
		_ = client.Close()
		return nil, store.Unreachable("ping", err)
	}

	return &Store{
		client:    client,
		l:         logger.Named(StoreName),
		keyPrefix: config.KeyPrefix,
		config:    config,
	}, nil
}

// GetConfig returns the current store configuration
func (s *Store) GetConfig() store.StoreConfig {
	return s.config
}

func (s *Store) key(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

// TrySet implements store.LockStore.
func (s *Store) TrySet(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}
	ttl = store.ResolveTTL(ttl, s.config.GetTTL())

	ok, err := s.client.SetNX(ctx, s.key(key), token, ttl).Result()
	if err != nil {
		return false, store.Unreachable("setnx", err)
	}
	return ok, nil
}

// DeleteIfOwned implements store.LockStore.
func (s *Store) DeleteIfOwned(ctx context.Context, key, token string) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}

	n, err := releaseScript.Run(ctx, s.client, []string{s.key(key)}, token).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, store.Unreachable("release", err)
	}
	return n == 1, nil
}

// Get implements store.LockStore.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return "", false, err
	}

	token, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, store.Unreachable("get", err)
	}
	return token, true, nil
}

// DeleteMatching implements store.LockStore using SCAN so the server is
// never blocked by a KEYS call.
func (s *Store) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" {
		return 0, store.ErrInvalidKey
	}

	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.key(pattern), scanBatch).Result()
		if err != nil {
			return deleted, store.Unreachable("scan", err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, store.Unreachable("del", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	s.l.Debugw("deleted matching keys", "pattern", pattern, "count", deleted)
	return deleted, nil
}

// Close closes the Redis client connection
func (s *Store) Close() {
	if err := s.client.Close(); err != nil {
		s.l.Errorf("Error closing Redis connection: %v", err)
	}
}
