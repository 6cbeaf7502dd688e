package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitKeyPrefix namespaces rate limit counters.
const RedisRateLimitKeyPrefix = "molrank:ratelimit:"

// fixedWindowScript increments the counter and starts the window on the
// first hit. Returns {count, pttl}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if current == 1 or ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimitStore shares fixed-window counters across API replicas.
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore creates a store backed by client.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// Allow implements RateLimitStore.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, s.client, []string{RedisRateLimitKeyPrefix + key}, config.WindowDuration.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if count <= config.RequestsPerWindow {
		return Decision{Allowed: true, Remaining: config.RequestsPerWindow - count}, nil
	}
	return Decision{RetryAfter: ttl}, nil
}
