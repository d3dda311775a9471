package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`

	// KeyPrefix namespaces every key, so multiple deployments can share
	// one server.
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisBackend stores entries in Redis with server-side expiry. A
// per-category set tracks member keys so category invalidation does not
// need a server-wide scan.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBackend connects to Redis and verifies the connection
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "pipeline"
	}
	return &RedisBackend{rdb: rdb, prefix: prefix}, nil
}

// Close closes the Redis connection
func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}

func (b *RedisBackend) entryKey(key string) string {
	return b.prefix + ":entry:" + key
}

func (b *RedisBackend) categoryKey(category string) string {
	return b.prefix + ":category:" + category
}

// categoryOf recovers the category from a storage key
func categoryOf(key string) string {
	if i := strings.Index(key, ":"); i > 0 {
		return key[:i]
	}
	return key
}

// Get implements Backend. redis.Nil maps to a plain miss.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.rdb.Get(ctx, b.entryKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return value, nil
}

// Set implements Backend with server-side TTL
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, b.entryKey(key), value, ttl)
	pipe.SAdd(ctx, b.categoryKey(categoryOf(key)), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete implements Backend
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, b.entryKey(key))
	pipe.SRem(ctx, b.categoryKey(categoryOf(key)), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// DeleteCategory implements Backend using the category member set
func (b *RedisBackend) DeleteCategory(ctx context.Context, category string) error {
	members, err := b.rdb.SMembers(ctx, b.categoryKey(category)).Result()
	if err != nil {
		return fmt.Errorf("redis smembers failed: %w", err)
	}
	if len(members) == 0 {
		return nil
	}
	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, b.entryKey(m))
	}
	keys = append(keys, b.categoryKey(category))
	if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
