package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/celltx-risk-engine/internal/domain"
)

// MemoryCache is the in-process LRU tier.
type MemoryCache struct {
	entries *lru.Cache
}

// NewMemoryCache creates an LRU result cache with the given entry capacity.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memory cache size must be positive, got %d", size)
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &MemoryCache{entries: entries}, nil
}

// Get returns the cached result for a snapshot key.
func (c *MemoryCache) Get(ctx context.Context, key string) (*domain.EnsembleResult, bool, error) {
	value, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	cached, ok := value.(*domain.EnsembleResult)
	if !ok {
		c.entries.Remove(key)
		return nil, false, nil
	}
	return cached, true, nil
}

// Set stores a result under its snapshot key.
func (c *MemoryCache) Set(ctx context.Context, key string, result *domain.EnsembleResult) error {
	c.entries.Add(key, result)
	return nil
}

// Ping is a no-op for the in-process tier.
func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

// Close purges the cache.
func (c *MemoryCache) Close() error {
	c.entries.Purge()
	return nil
}
