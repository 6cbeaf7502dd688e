package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed-window limit: RequestsPerWindow requests per
// WindowDuration. Both must be > 0.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate checks that the RateLimitConfig has valid values.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// PerMinute returns a config allowing n requests per minute.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: n, WindowDuration: time.Minute}
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the time until the current window resets.
	RetryAfter time.Duration
}

// RateLimitStore holds rate limit state. Implementations must be safe for
// concurrent use.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, config RateLimitConfig) (Decision, error)
}

// bucket represents a rate limit bucket for a single key.
type bucket struct {
	count     int
	windowEnd time.Time
}

// InMemoryRateLimitStore is a fixed-window counter kept in process memory.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewInMemoryRateLimitStore creates a new in-memory rate limit store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow implements RateLimitStore. It never returns an error.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, config RateLimitConfig) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, exists := s.buckets[key]
	if !exists || !now.Before(b.windowEnd) {
		b = &bucket{windowEnd: now.Add(config.WindowDuration)}
		s.buckets[key] = b
	}

	if b.count < config.RequestsPerWindow {
		b.count++
		return Decision{Allowed: true, Remaining: config.RequestsPerWindow - b.count}, nil
	}
	return Decision{RetryAfter: b.windowEnd.Sub(now)}, nil
}

// Cleanup removes expired buckets.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, b := range s.buckets {
		if !now.Before(b.windowEnd) {
			delete(s.buckets, key)
		}
	}
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *InMemoryRateLimitStore) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Len returns the number of tracked keys.
func (s *InMemoryRateLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys requests by client IP, preferring the first
// X-Forwarded-For entry, then X-Real-IP, then RemoteAddr.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return "ip:" + strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return "ip:" + strings.TrimSpace(xri)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr
		}
		return "ip:" + host
	}
}

// RateLimiter rejects requests over the limit with 429 and a JSON error
// body. Store failures are logged and the request is allowed through.
// metrics may be nil.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	limit := strconv.Itoa(config.RequestsPerWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := normalizePath(r.URL.Path)
			if metrics != nil {
				metrics.IncRateLimitRequests(route)
			}

			d, err := store.Allow(r.Context(), keyFunc(r), config)
			if err != nil {
				if metrics != nil {
					metrics.IncRateLimitStoreErrors()
				}
				slog.WarnContext(r.Context(), "rate limit store unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			if metrics != nil {
				metrics.IncRateLimitBlocked(route)
			}
			retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
			if retryAfter <= 0 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.RetryAfter).Unix(), 10))

			ctx := SetErrorCode(r.Context(), errCodeRateLimited)
			UpdateResponseContext(w, ctx)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"Too many requests"}}`))
		})
	}
}

// errCodeRateLimited matches api.ErrCodeRateLimited; api imports this
// package, so the value is repeated here.
const errCodeRateLimited = "rate_limited"
