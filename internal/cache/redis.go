package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/celltx-risk-engine/internal/domain"
)

// RedisCache is the shared distributed tier.
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewRedisCache creates a Redis-backed result cache from the cache config.
func NewRedisCache(config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// cachedResult wraps the stored result with cache metadata.
type cachedResult struct {
	Result   *domain.EnsembleResult `json:"result"`
	CachedAt time.Time              `json:"cached_at"`
}

// Get retrieves a cached ensemble result.
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.EnsembleResult, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached result: %w", err)
	}

	var cached cachedResult
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Result, true, nil
}

// Set caches an ensemble result with the default TTL.
func (c *RedisCache) Set(ctx context.Context, key string, result *domain.EnsembleResult) error {
	cached := cachedResult{
		Result:   result,
		CachedAt: time.Now(),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached result: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, c.defaultTTL).Err()
}

// Ping checks if the Redis connection is alive.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
