package setup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celltx-risk-engine/internal/domain"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger(domain.LoggingConfig{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = NewLogger(domain.LoggingConfig{Level: "warn", Format: "text"})
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	// An unparseable level falls back to info rather than failing startup.
	logger = NewLogger(domain.LoggingConfig{Level: "verbose"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNewStore_SQLite(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "setup-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	cfg := &domain.Config{
		Storage: domain.StorageConfig{
			Backend:    "sqlite",
			SQLitePath: filepath.Join(tmpDir, "accrual.db"),
		},
	}
	logger := NewLogger(domain.LoggingConfig{Level: "error"})

	store, err := NewStore(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewStore_UnknownBackend(t *testing.T) {
	cfg := &domain.Config{Storage: domain.StorageConfig{Backend: "dynamo"}}
	logger := NewLogger(domain.LoggingConfig{Level: "error"})

	_, err := NewStore(context.Background(), cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestNewResultCache_MemoryOnly(t *testing.T) {
	logger := NewLogger(domain.LoggingConfig{Level: "error"})

	tiered := NewResultCache(domain.CacheConfig{MemorySize: 8}, logger)
	require.NotNil(t, tiered)
	defer tiered.Close()

	assert.NoError(t, tiered.Ping(context.Background()))
}

func TestNewResultCache_DisabledTiersStillServe(t *testing.T) {
	logger := NewLogger(domain.LoggingConfig{Level: "error"})

	tiered := NewResultCache(domain.CacheConfig{MemorySize: 0}, logger)
	require.NotNil(t, tiered)

	_, ok, err := tiered.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuild_WiresFullGraph(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "setup-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	cfg := &domain.Config{
		Storage: domain.StorageConfig{
			Backend:    "sqlite",
			SQLitePath: filepath.Join(tmpDir, "accrual.db"),
		},
		Cache: domain.CacheConfig{MemorySize: 8},
		Mitigation: domain.MitigationConfig{
			DefaultSamples: 20000,
			MinSamples:     10000,
			DefaultSeed:    1,
			DefaultMethod:  "geometric",
		},
	}
	logger := NewLogger(domain.LoggingConfig{Level: "error"})

	deps, cleanup, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Orchestrator)
	assert.NotNil(t, deps.Engine)
	assert.NotNil(t, deps.Conditions)
	assert.NotNil(t, deps.Store)
	assert.NotNil(t, deps.Combiner)
	assert.NotNil(t, deps.Results)
}
