package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces snapshot keys.
const RedisKeyPrefix = "molrank:snapshot:"

// RedisCache stores snapshots as JSON strings with a Redis-side TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. ttl <= 0 uses DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(dataset string) string {
	return RedisKeyPrefix + dataset
}

// Get fetches and decodes a snapshot. A missing key is ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, dataset string) (*Snapshot, error) {
	raw, err := c.client.Get(ctx, redisKey(dataset)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// Set encodes and stores a snapshot with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, s *Snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(s.Dataset), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

// Invalidate deletes a dataset's key.
func (c *RedisCache) Invalidate(ctx context.Context, dataset string) error {
	if err := c.client.Del(ctx, redisKey(dataset)).Err(); err != nil {
		return fmt.Errorf("redis delete snapshot: %w", err)
	}
	return nil
}
