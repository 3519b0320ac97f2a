package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"tabkeep/pkg/logger"
	"tabkeep/pkg/redis"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int           // Per-minute request limit per user/IP
	CleanupInterval   time.Duration // How often to clean up old usage records
	CleanupTTL        time.Duration // How long to keep inactive usage records
}

// DefaultRateLimitConfig reads the limit from the environment with a sane
// default for the chat endpoint.
func DefaultRateLimitConfig() RateLimitConfig {
	limit := 20
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return RateLimitConfig{
		RequestsPerMinute: limit,
		CleanupInterval:   5 * time.Minute,
		CleanupTTL:        10 * time.Minute,
	}
}

// minuteWindow tracks request counts for one fixed-window minute.
type minuteWindow struct {
	count       int
	windowStart time.Time
	mutex       sync.Mutex
}

// RateLimiter counts requests per minute. Redis backs the counters when
// available so limits hold across instances; otherwise an in-process map
// does fixed-window counting.
type RateLimiter struct {
	usage      map[string]*minuteWindow
	mutex      sync.RWMutex
	cleanupTTL time.Duration
}

var (
	globalRateLimiter *RateLimiter
	limiterOnce       sync.Once
)

func getRateLimiter(config RateLimitConfig) *RateLimiter {
	limiterOnce.Do(func() {
		globalRateLimiter = NewRateLimiter(config)
	})
	return globalRateLimiter
}

// NewRateLimiter creates a rate limiter and starts its cleanup routine.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		usage:      make(map[string]*minuteWindow),
		cleanupTTL: config.CleanupTTL,
	}

	go rl.cleanupRoutine(config.CleanupInterval)

	return rl
}

// increment bumps the counter for key in the current minute window and
// returns the new count.
func (rl *RateLimiter) increment(ctx context.Context, key string) int {
	if client := redis.GetClient(); client != nil {
		minute := time.Now().Unix() / 60
		redisKey := fmt.Sprintf("ratelimit:%s:%d", key, minute)

		count, err := client.Incr(ctx, redisKey).Result()
		if err == nil {
			if count == 1 {
				client.Expire(ctx, redisKey, 2*time.Minute)
			}
			return int(count)
		}
		logger.GetLogger("ratelimit").Warn("Redis counter failed, using local window: " + err.Error())
	}

	return rl.incrementLocal(key)
}

func (rl *RateLimiter) incrementLocal(key string) int {
	rl.mutex.RLock()
	window, exists := rl.usage[key]
	rl.mutex.RUnlock()

	if !exists {
		rl.mutex.Lock()
		window, exists = rl.usage[key]
		if !exists {
			window = &minuteWindow{windowStart: time.Now().Truncate(time.Minute)}
			rl.usage[key] = window
		}
		rl.mutex.Unlock()
	}

	window.mutex.Lock()
	defer window.mutex.Unlock()

	currentWindow := time.Now().Truncate(time.Minute)
	if window.windowStart.Before(currentWindow) {
		window.windowStart = currentWindow
		window.count = 0
	}
	window.count++
	return window.count
}

// cleanupRoutine periodically removes stale windows to bound memory.
func (rl *RateLimiter) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	for key, window := range rl.usage {
		window.mutex.Lock()
		stale := now.Sub(window.windowStart) > rl.cleanupTTL
		window.mutex.Unlock()

		if stale {
			delete(rl.usage, key)
		}
	}
}

// RateLimitMiddleware enforces the per-minute request limit. Requests over
// the limit get a 429 with a JSON body; everyone gets X-RateLimit headers.
func RateLimitMiddleware(next http.Handler, config RateLimitConfig) http.Handler {
	rl := getRateLimiter(config)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		key := getRateLimitKey(r)
		count := rl.increment(r.Context(), key)

		remaining := config.RequestsPerMinute - count
		if remaining < 0 {
			remaining = 0
		}
		reset := time.Now().Truncate(time.Minute).Add(time.Minute)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > config.RequestsPerMinute {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   "rate_limited",
				"message": "Too many requests. Please slow down.",
				"status":  http.StatusTooManyRequests,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getRateLimitKey keys the counter by verified user ID when present, else
// by client IP.
func getRateLimitKey(r *http.Request) string {
	if userID, ok := GetAuthenticatedUserID(r.Context()); ok {
		return "user:" + userID
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
