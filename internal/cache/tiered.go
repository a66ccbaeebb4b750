package cache

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/celltx-risk-engine/internal/domain"
)

// TieredCache reads through the memory tier first, then the distributed
// tier, promoting distributed hits into memory. Either tier may be nil.
type TieredCache struct {
	memory *MemoryCache
	shared ResultCache
	logger *logrus.Logger
}

// NewTieredCache assembles the available tiers.
func NewTieredCache(memory *MemoryCache, shared ResultCache, logger *logrus.Logger) *TieredCache {
	return &TieredCache{memory: memory, shared: shared, logger: logger}
}

// Get checks memory first, then the shared tier. Shared-tier errors are
// logged and treated as misses.
func (c *TieredCache) Get(ctx context.Context, key string) (*domain.EnsembleResult, bool, error) {
	if c.memory != nil {
		if result, ok, _ := c.memory.Get(ctx, key); ok {
			return result, true, nil
		}
	}

	if c.shared != nil {
		result, ok, err := c.shared.Get(ctx, key)
		if err != nil {
			c.logger.WithError(err).Warn("Shared cache lookup failed, treating as miss")
			return nil, false, nil
		}
		if ok {
			if c.memory != nil {
				_ = c.memory.Set(ctx, key, result)
			}
			return result, true, nil
		}
	}

	return nil, false, nil
}

// Set writes through to every available tier. Shared-tier write failures
// are logged, not propagated.
func (c *TieredCache) Set(ctx context.Context, key string, result *domain.EnsembleResult) error {
	if c.memory != nil {
		_ = c.memory.Set(ctx, key, result)
	}
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, result); err != nil {
			c.logger.WithError(err).Warn("Shared cache write failed")
		}
	}
	return nil
}

// Ping reports shared-tier health; the memory tier cannot fail.
func (c *TieredCache) Ping(ctx context.Context) error {
	if c.shared != nil {
		return c.shared.Ping(ctx)
	}
	return nil
}

// Close releases both tiers.
func (c *TieredCache) Close() error {
	var err error
	if c.memory != nil {
		err = c.memory.Close()
	}
	if c.shared != nil {
		if cerr := c.shared.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}
