package middleware

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient connects to localhost:6379 or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func uniqueKey(prefix string) string {
	return prefix + strconv.FormatInt(time.Now().UnixNano(), 10)
}

func TestRedisRateLimitStore_Allow(t *testing.T) {
	client := redisClient(t)
	store := NewRedisRateLimitStore(client)
	cfg := RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute}
	ctx := context.Background()
	key := uniqueKey("test-redis-")
	defer client.Del(ctx, RedisRateLimitKeyPrefix+key)

	for i := 0; i < 5; i++ {
		d, err := store.Allow(ctx, key, cfg)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !d.Allowed || d.Remaining != 4-i {
			t.Errorf("request %d: %+v", i+1, d)
		}
	}

	d, err := store.Allow(ctx, key, cfg)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("6th request should be blocked: %+v", d)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v", d.RetryAfter)
	}
}

func TestRedisRateLimitStore_DifferentKeys(t *testing.T) {
	client := redisClient(t)
	store := NewRedisRateLimitStore(client)
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()
	a, b := uniqueKey("a-"), uniqueKey("b-")
	defer client.Del(ctx, RedisRateLimitKeyPrefix+a, RedisRateLimitKeyPrefix+b)

	if d, _ := store.Allow(ctx, a, cfg); !d.Allowed {
		t.Error("first key should be allowed")
	}
	if d, _ := store.Allow(ctx, a, cfg); d.Allowed {
		t.Error("first key should now be blocked")
	}
	if d, _ := store.Allow(ctx, b, cfg); !d.Allowed {
		t.Error("second key should be independent")
	}
}

func TestRedisRateLimitStore_WindowExpires(t *testing.T) {
	client := redisClient(t)
	store := NewRedisRateLimitStore(client)
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 200 * time.Millisecond}
	ctx := context.Background()
	key := uniqueKey("expire-")
	defer client.Del(ctx, RedisRateLimitKeyPrefix+key)

	_, _ = store.Allow(ctx, key, cfg)
	if d, _ := store.Allow(ctx, key, cfg); d.Allowed {
		t.Fatal("second request inside the window should be blocked")
	}
	time.Sleep(300 * time.Millisecond)
	if d, _ := store.Allow(ctx, key, cfg); !d.Allowed {
		t.Error("request after the window should be allowed")
	}
}

func TestRedisRateLimitStore_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	if _, err := NewRedisRateLimitStore(client).Allow(context.Background(), "k", PerMinute(1)); err == nil {
		t.Error("expected error from unreachable Redis")
	}
}
