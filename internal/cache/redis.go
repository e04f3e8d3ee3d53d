// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Codec encodes cached values.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec implements Codec using encoding/json.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// RedisCache implements Cache on Redis.
type RedisCache[T any] struct {
	client redis.Cmdable
	codec  Codec
	prefix string
}

// NewRedis returns a RedisCache. A nil codec defaults to JSONCodec.
// Keys are stored as prefix:key when prefix is set.
func NewRedis[T any](client redis.Cmdable, codec Codec, prefix string) *RedisCache[T] {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &RedisCache[T]{client: client, codec: codec, prefix: prefix}
}

func (c *RedisCache[T]) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get implements Cache.
func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var v T
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := c.codec.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

// Set implements Cache.
func (c *RedisCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := c.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate implements Cache.
func (c *RedisCache[T]) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
