// internal/config/loaders.go
package config

import (
	"fmt"
	"strings"

	"github.com/avivl/quorum-guard/internal/store"
	"github.com/avivl/quorum-guard/internal/store/dynamodb"
	"github.com/avivl/quorum-guard/internal/store/memory"
	"github.com/avivl/quorum-guard/internal/store/redis"
	"github.com/avivl/quorum-guard/internal/store/scylladb"
	"github.com/spf13/viper"
)

// Store sections in the configuration file, by backend.
const (
	memorySection = "memoryConfig"
	redisSection  = "redisConfig"
	dynamoSection = "dynamoDbConfig"
	scyllaSection = "scyllaDbConfig"
)

// MemoryConfigLoader loads the in-process store configuration
func MemoryConfigLoader(v *viper.Viper) (*memory.MemoryConfig, error) {
	def := memory.NewMemoryConfig()
	v.SetDefault(memorySection+".ttl", def.TTL)
	return unmarshalStore(v, memorySection, def)
}

// RedisConfigLoader loads Redis configuration
func RedisConfigLoader(v *viper.Viper) (*redis.RedisConfig, error) {
	def := redis.NewRedisConfig()
	v.SetDefault(redisSection+".host", def.Host)
	v.SetDefault(redisSection+".port", def.Port)
	v.SetDefault(redisSection+".password", "")
	v.SetDefault(redisSection+".db", 0)
	v.SetDefault(redisSection+".ttl", def.TTL)
	v.SetDefault(redisSection+".keyPrefix", "quorum-guard")
	v.SetDefault(redisSection+".table", def.TableName)
	v.SetDefault(redisSection+".endpoints", []string{})
	return unmarshalStore(v, redisSection, def)
}

// DynamoConfigLoader loads DynamoDB configuration
func DynamoConfigLoader(v *viper.Viper) (*dynamodb.DynamoDBConfig, error) {
	def := dynamodb.NewDynamoDBConfig()
	v.SetDefault(dynamoSection+".region", def.Region)
	v.SetDefault(dynamoSection+".table", def.Table)
	v.SetDefault(dynamoSection+".ttl", def.TTL)
	v.SetDefault(dynamoSection+".endpoints", []string{})
	v.SetDefault(dynamoSection+".profile", "")
	v.SetDefault(dynamoSection+".accessKeyId", "")
	v.SetDefault(dynamoSection+".secretAccessKey", "")
	v.SetDefault(dynamoSection+".createTable", def.CreateTable)
	return unmarshalStore(v, dynamoSection, def)
}

// ScyllaConfigLoader loads ScyllaDB configuration
func ScyllaConfigLoader(v *viper.Viper) (*scylladb.ScyllaDBConfig, error) {
	def := scylladb.NewScyllaDBConfig()
	v.SetDefault(scyllaSection+".host", def.Host)
	v.SetDefault(scyllaSection+".port", def.Port)
	v.SetDefault(scyllaSection+".keyspace", def.Keyspace)
	v.SetDefault(scyllaSection+".table", def.Table)
	v.SetDefault(scyllaSection+".ttl", def.TTL)
	v.SetDefault(scyllaSection+".consistency", def.Consistency)
	v.SetDefault(scyllaSection+".replicationFactor", def.ReplicationFactor)
	v.SetDefault(scyllaSection+".endpoints", []string{})
	return unmarshalStore(v, scyllaSection, def)
}

// StoreConfigLoader returns the loader for a detected backend.
func StoreConfigLoader(backend string) (ConfigLoadFn[store.StoreConfig], error) {
	switch normalizeBackendType(backend) {
	case memory.StoreName:
		return erase[*memory.MemoryConfig](MemoryConfigLoader), nil
	case redis.StoreName:
		return erase[*redis.RedisConfig](RedisConfigLoader), nil
	case dynamodb.StoreName:
		return erase[*dynamodb.DynamoDBConfig](DynamoConfigLoader), nil
	case scylladb.StoreName:
		return erase[*scylladb.ScyllaDBConfig](ScyllaConfigLoader), nil
	}
	return nil, fmt.Errorf("unsupported backend type %q", backend)
}

func erase[T store.StoreConfig](fn ConfigLoadFn[T]) ConfigLoadFn[store.StoreConfig] {
	return func(v *viper.Viper) (store.StoreConfig, error) {
		return fn(v)
	}
}

// unmarshalStore decodes one section. UnmarshalKey would skip environment
// overrides of nested keys, so the section is taken from AllSettings.
func unmarshalStore[T store.StoreConfig](v *viper.Viper, section string, cfg T) (T, error) {
	var zero T
	settings, _ := v.AllSettings()[strings.ToLower(section)].(map[string]any)
	sub := viper.New()
	if err := sub.MergeConfigMap(settings); err != nil {
		return zero, fmt.Errorf("unable to read %s: %w", section, err)
	}
	if err := sub.Unmarshal(cfg); err != nil {
		return zero, fmt.Errorf("unable to decode %s: %w", section, err)
	}
	if err := cfg.Validate(); err != nil {
		return zero, fmt.Errorf("invalid %s: %w", section, err)
	}
	return cfg, nil
}
