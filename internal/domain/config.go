package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Mitigation MitigationConfig `mapstructure:"mitigation"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
}

// StorageConfig selects and configures the accrual-history backend.
type StorageConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig represents PostgreSQL connection configuration, used when
// storage.backend is "postgres".
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdle     time.Duration `mapstructure:"conn_max_idle"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents the ensemble-result cache configuration.
type CacheConfig struct {
	// MemorySize is the LRU entry capacity; 0 disables the memory tier.
	MemorySize int `mapstructure:"memory_size"`

	// RedisURL enables the distributed tier when non-empty.
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// EngineConfig carries the Bayesian engine's sensitivity-analysis defaults.
// The discount factor is an explicit parameter everywhere, never hardcoded
// inside a formula.
type EngineConfig struct {
	DiscountSweepMin   float64 `mapstructure:"discount_sweep_min"`
	DiscountSweepMax   float64 `mapstructure:"discount_sweep_max"`
	DiscountSweepSteps int     `mapstructure:"discount_sweep_steps"`
}

// MitigationConfig carries Monte Carlo defaults for the combiner.
type MitigationConfig struct {
	DefaultSamples int    `mapstructure:"default_samples"`
	MinSamples     int    `mapstructure:"min_samples"`
	DefaultSeed    uint64 `mapstructure:"default_seed"`
	DefaultMethod  string `mapstructure:"default_method"`
}
