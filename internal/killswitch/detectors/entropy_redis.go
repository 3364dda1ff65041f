package detectors

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is an entropyCache backed by Redis, for deployments running
// several sync-client processes on the same host (or fleet) that want a
// shared spike-detection history instead of each process's own LRU.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing Redis client. ttl bounds how long an
// entropy reading remains eligible for the spike rule; entries older than
// that are treated as absent, same as a cold LRU cache.
func NewRedisCache(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: keyPrefix, ttl: ttl}
}

func (c *RedisCache) get(path string) (float64, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	val, err := c.client.Get(ctx, c.prefix+path).Result()
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (c *RedisCache) put(path string, value float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	c.client.Set(ctx, c.prefix+path, strconv.FormatFloat(value, 'f', -1, 64), c.ttl)
}
