// Package setup assembles the engine's components from configuration:
// logger, accrual store, result cache, and the scoring/inference stack.
package setup

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/celltx-risk-engine/internal/accrual"
	"github.com/celltx-risk-engine/internal/api"
	"github.com/celltx-risk-engine/internal/bayes"
	"github.com/celltx-risk-engine/internal/cache"
	"github.com/celltx-risk-engine/internal/database"
	"github.com/celltx-risk-engine/internal/domain"
	"github.com/celltx-risk-engine/internal/ensemble"
	"github.com/celltx-risk-engine/internal/mitigation"
	"github.com/celltx-risk-engine/internal/scoring"
)

// NewLogger builds the process logger from the logging config.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return logger
}

// NewStore opens the configured accrual backend. The Postgres path runs
// pending migrations before the store opens.
func NewStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (accrual.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := accrual.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.WithField("path", cfg.Storage.SQLitePath).Info("SQLite accrual store opened")
		return store, nil

	case "postgres":
		url := database.URL(cfg.Database)

		runner, err := database.NewMigrationRunner(url, cfg.Database.MigrationsPath, logger)
		if err != nil {
			return nil, fmt.Errorf("creating migration runner: %w", err)
		}
		if err := runner.Up(ctx); err != nil {
			runner.Close()
			return nil, fmt.Errorf("migrating: %w", err)
		}
		if err := runner.Close(); err != nil {
			return nil, fmt.Errorf("closing migration runner: %w", err)
		}

		store, err := accrual.NewPostgresStoreFromURL(url)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"host":     cfg.Database.Host,
			"database": cfg.Database.Database,
		}).Info("Postgres accrual store opened")
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// NewResultCache assembles the available cache tiers. A misconfigured or
// unreachable tier is logged and dropped; caching is never load-bearing.
func NewResultCache(cfg domain.CacheConfig, logger *logrus.Logger) *cache.TieredCache {
	var memory *cache.MemoryCache
	if cfg.MemorySize > 0 {
		m, err := cache.NewMemoryCache(cfg.MemorySize)
		if err != nil {
			logger.WithError(err).Warn("Memory cache disabled")
		} else {
			memory = m
		}
	}

	var shared cache.ResultCache
	if cfg.RedisURL != "" {
		r, err := cache.NewRedisCache(cfg)
		if err != nil {
			logger.WithError(err).Warn("Redis cache unavailable, continuing without distributed tier")
		} else {
			shared = r
		}
	}

	return cache.NewTieredCache(memory, shared, logger)
}

// Build wires the full dependency graph for the API server. The returned
// cleanup function releases the store and cache.
func Build(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (api.Deps, func(), error) {
	store, err := NewStore(ctx, cfg, logger)
	if err != nil {
		return api.Deps{}, nil, err
	}

	conditions, err := bayes.NewConditionRegistry()
	if err != nil {
		store.Close()
		return api.Deps{}, nil, fmt.Errorf("building condition registry: %w", err)
	}

	results := NewResultCache(cfg.Cache, logger)

	deps := api.Deps{
		Orchestrator: ensemble.New(logger, scoring.NewRegistry(logger)),
		Engine:       bayes.NewEngine(logger),
		Conditions:   conditions,
		Store:        store,
		Combiner:     mitigation.NewCombiner(logger, cfg.Mitigation),
		Results:      results,
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close accrual store")
		}
		if err := results.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close result cache")
		}
	}

	return deps, cleanup, nil
}
