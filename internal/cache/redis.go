package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// staleRetention multiplies the freshness TTL to get the Redis key TTL, so
// expired entries survive long enough to serve as stale fallbacks.
const staleRetention = 4

const keyNamespace = "wardcast:"

// redisEnvelope wraps a cached value with its freshness deadline. The key
// itself outlives the deadline by the retention factor.
type redisEnvelope struct {
	ExpiresAt time.Time `json:"expires_at"`
	Value     []byte    `json:"value"`
}

// RedisBackend stores cache entries in Redis, shared across replicas.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, addr, password string, db int) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, bool, error) {
	raw, err := b.client.Get(ctx, keyNamespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, false, nil
	}
	if err != nil {
		return nil, false, false, fmt.Errorf("redis get: %w", err)
	}

	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Undecodable entries are treated as absent and overwritten on the
		// next Set.
		return nil, false, false, nil
	}
	return env.Value, time.Now().Before(env.ExpiresAt), true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	raw, err := json.Marshal(redisEnvelope{
		ExpiresAt: time.Now().Add(ttl),
		Value:     value,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := b.client.Set(ctx, keyNamespace+key, raw, ttl*staleRetention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) DeleteByPrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	pattern := keyNamespace + prefix + "*"
	for {
		keys, next, err := b.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
