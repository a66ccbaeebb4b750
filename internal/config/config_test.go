package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager()
	require.NoError(t, err)
	require.NotNil(t, manager.GetConfig())
	return manager
}

func TestNewManager_Defaults(t *testing.T) {
	manager := newTestManager(t)
	cfg := manager.GetConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 50.0, cfg.Server.RateLimit)
	assert.Equal(t, 100, cfg.Server.RateBurst)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "./data/accrual.db", cfg.Storage.SQLitePath)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)

	assert.Equal(t, 1024, cfg.Cache.MemorySize)
	assert.Empty(t, cfg.Cache.RedisURL, "distributed cache tier is opt-in")
	assert.Equal(t, 24*time.Hour, cfg.Cache.DefaultTTL)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, 0.1, cfg.Engine.DiscountSweepMin)
	assert.Equal(t, 1.0, cfg.Engine.DiscountSweepMax)
	assert.Equal(t, 10, cfg.Engine.DiscountSweepSteps)

	assert.Equal(t, 20000, cfg.Mitigation.DefaultSamples)
	assert.Equal(t, 10000, cfg.Mitigation.MinSamples)
	assert.Equal(t, uint64(1), cfg.Mitigation.DefaultSeed)
	assert.Equal(t, "geometric", cfg.Mitigation.DefaultMethod)
}

func TestManager_DefaultsPassValidation(t *testing.T) {
	manager := newTestManager(t)
	assert.NoError(t, manager.Validate())
}

func TestManager_Accessors(t *testing.T) {
	manager := newTestManager(t)

	server := manager.GetServerConfig()
	require.NotNil(t, server)
	assert.Equal(t, 8080, server.Port)

	database := manager.GetDatabaseConfig()
	require.NotNil(t, database)
	assert.Equal(t, "localhost", database.Host)
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *Manager)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(m *Manager) { m.config.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port too large",
			mutate:  func(m *Manager) { m.config.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "unknown backend",
			mutate:  func(m *Manager) { m.config.Storage.Backend = "dynamo" },
			wantErr: "invalid storage backend",
		},
		{
			name:    "sqlite without path",
			mutate:  func(m *Manager) { m.config.Storage.SQLitePath = "" },
			wantErr: "sqlite path is required",
		},
		{
			name: "postgres without host",
			mutate: func(m *Manager) {
				m.config.Storage.Backend = "postgres"
				m.config.Database.Host = ""
			},
			wantErr: "database host is required",
		},
		{
			name: "postgres without username",
			mutate: func(m *Manager) {
				m.config.Storage.Backend = "postgres"
				m.config.Database.Username = ""
			},
			wantErr: "database username is required",
		},
		{
			name:    "sweep min not positive",
			mutate:  func(m *Manager) { m.config.Engine.DiscountSweepMin = 0 },
			wantErr: "invalid discount sweep range",
		},
		{
			name: "sweep inverted",
			mutate: func(m *Manager) {
				m.config.Engine.DiscountSweepMin = 0.8
				m.config.Engine.DiscountSweepMax = 0.2
			},
			wantErr: "invalid discount sweep range",
		},
		{
			name:    "sweep too few steps",
			mutate:  func(m *Manager) { m.config.Engine.DiscountSweepSteps = 1 },
			wantErr: "at least 2 steps",
		},
		{
			name:    "mitigation min samples not positive",
			mutate:  func(m *Manager) { m.config.Mitigation.MinSamples = 0 },
			wantErr: "min_samples must be positive",
		},
		{
			name: "mitigation default below minimum",
			mutate: func(m *Manager) {
				m.config.Mitigation.DefaultSamples = 500
			},
			wantErr: "below min_samples",
		},
		{
			name:    "invalid log level",
			mutate:  func(m *Manager) { m.config.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := newTestManager(t)
			tt.mutate(manager)

			err := manager.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
