package redis

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// Global Redis client instance; nil when Redis is not configured.
	client *redis.Client
)

// InitRedis initializes the Redis client with the given URL. An empty URL
// falls back to REDIS_URL; when neither is set the gateway runs without
// Redis and the rate limiter keeps counters in memory.
func InitRedis(redisURL string) error {
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
		if redisURL == "" {
			return nil
		}
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return err
	}

	client = redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client = nil
		return err
	}

	return nil
}

// GetClient returns the Redis client instance, or nil when not configured.
func GetClient() *redis.Client {
	return client
}

// Close closes the Redis client connection
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}
