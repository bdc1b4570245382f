// Package cache provides a Redis-backed TTL cache for dictionary and stats
// responses.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when the key is absent or expired.
var ErrMiss = fmt.Errorf("cache miss")

// Cache stores JSON-encoded values with a fixed TTL.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis at redisURL.
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{client: client, prefix: "ndtdesk:", ttl: ttl}
}

func (c *Cache) key(name string) string {
	return c.prefix + name
}

// Set stores the value as JSON under the key with the cache TTL.
func (c *Cache) Set(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, c.key(name), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cache %s: %w", name, err)
	}
	return nil
}

// Get loads the key into dest. Returns ErrMiss when absent.
func (c *Cache) Get(ctx context.Context, name string, dest any) error {
	data, err := c.client.Get(ctx, c.key(name)).Result()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("get cache %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("unmarshal cache %s: %w", name, err)
	}
	return nil
}

// Invalidate drops the named keys.
func (c *Cache) Invalidate(ctx context.Context, names ...string) error {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = c.key(name)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
