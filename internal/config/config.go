// Package config provides configuration management for pricetracker.
// Configuration is read from a YAML file with environment variable overrides
// declared through `env` struct tags; .env files are loaded first.
package config

import (
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/logger"
)

// Default configuration values.
const (
	DefaultConfigPath      = "config.yaml"
	defaultFetchTimeout    = 60 * time.Second
	defaultMaxBodyBytes    = 10 * 1024 * 1024
	defaultCheckInterval   = 1 * time.Second
	defaultMaxWorkers      = 8
	defaultStaggerSlot     = 15 * time.Minute
	defaultDatabaseDriver  = DriverSQLite
	defaultDatabaseDSN     = "file:pricetracker.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	defaultLockTTL         = 10 * time.Minute
	defaultTrackInterval   = 6 * time.Hour
	defaultRetryAttempts   = 1
	defaultRetryDelay      = 5 * time.Second
	defaultMetricsAddress  = ":9464"
	defaultShutdownTimeout = 30 * time.Second
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the application configuration.
type Config struct {
	Logging   logger.Config   `yaml:"logging"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// FetcherConfig holds the outbound identity pools and request limits.
type FetcherConfig struct {
	UserAgents   []string      `env:"FETCHER_USER_AGENTS"    yaml:"user_agents"`
	Proxies      []string      `env:"FETCHER_PROXIES"        yaml:"proxies"`
	Timeout      time.Duration `env:"FETCHER_TIMEOUT"        yaml:"timeout"`
	MaxBodyBytes int64         `env:"FETCHER_MAX_BODY_BYTES" yaml:"max_body_bytes"`
}

// SchedulerConfig controls the in-process scheduler loop.
type SchedulerConfig struct {
	CheckInterval   time.Duration `env:"SCHEDULER_CHECK_INTERVAL"   yaml:"check_interval"`
	MaxWorkers      int           `env:"SCHEDULER_MAX_WORKERS"      yaml:"max_workers"`
	ShutdownTimeout time.Duration `env:"SCHEDULER_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
	// StaggerSlot spreads new interval jobs over slots of this width. Negative disables it.
	StaggerSlot time.Duration `env:"SCHEDULER_STAGGER_SLOT" yaml:"stagger_slot"`
}

// DatabaseConfig selects the durable store backing jobs and price history.
type DatabaseConfig struct {
	Driver string `env:"DATABASE_DRIVER" yaml:"driver"`
	DSN    string `env:"DATABASE_DSN"    yaml:"dsn"`
}

// RedisConfig enables the cross-process job lock when Address is set.
type RedisConfig struct {
	Address  string        `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string        `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int           `env:"REDIS_DB"       yaml:"db"`
	LockTTL  time.Duration `env:"REDIS_LOCK_TTL" yaml:"lock_ttl"`
}

// TrackingConfig holds defaults for newly tracked products.
type TrackingConfig struct {
	DefaultInterval   time.Duration `env:"TRACKING_DEFAULT_INTERVAL"    yaml:"default_interval"`
	RetryAttempts     int           `env:"TRACKING_RETRY_ATTEMPTS"      yaml:"retry_attempts"`
	RetryInitialDelay time.Duration `env:"TRACKING_RETRY_INITIAL_DELAY" yaml:"retry_initial_delay"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Address string `env:"METRICS_ADDRESS" yaml:"address"`
}

// SetDefaults fills zero-valued fields with defaults.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()

	if c.Fetcher.Timeout <= 0 {
		c.Fetcher.Timeout = defaultFetchTimeout
	}
	if c.Fetcher.MaxBodyBytes <= 0 {
		c.Fetcher.MaxBodyBytes = defaultMaxBodyBytes
	}

	if c.Scheduler.CheckInterval <= 0 {
		c.Scheduler.CheckInterval = defaultCheckInterval
	}
	if c.Scheduler.MaxWorkers <= 0 {
		c.Scheduler.MaxWorkers = defaultMaxWorkers
	}
	if c.Scheduler.StaggerSlot == 0 {
		c.Scheduler.StaggerSlot = defaultStaggerSlot
	}
	if c.Scheduler.ShutdownTimeout <= 0 {
		c.Scheduler.ShutdownTimeout = defaultShutdownTimeout
	}

	if c.Database.Driver == "" {
		c.Database.Driver = defaultDatabaseDriver
	}
	if c.Database.DSN == "" && c.Database.Driver == DriverSQLite {
		c.Database.DSN = defaultDatabaseDSN
	}

	if c.Redis.LockTTL <= 0 {
		c.Redis.LockTTL = defaultLockTTL
	}

	if c.Tracking.DefaultInterval <= 0 {
		c.Tracking.DefaultInterval = defaultTrackInterval
	}
	if c.Tracking.RetryAttempts <= 0 {
		c.Tracking.RetryAttempts = defaultRetryAttempts
	}
	if c.Tracking.RetryInitialDelay <= 0 {
		c.Tracking.RetryInitialDelay = defaultRetryDelay
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = defaultMetricsAddress
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return &ValidationError{Field: "database.driver", Value: c.Database.Driver, Reason: "must be sqlite or postgres"}
	}
	if c.Database.DSN == "" {
		return &ValidationError{Field: "database.dsn", Value: c.Database.DSN, Reason: "is required"}
	}
	if c.Fetcher.Timeout <= 0 {
		return &ValidationError{Field: "fetcher.timeout", Value: c.Fetcher.Timeout, Reason: "must be positive"}
	}
	if c.Scheduler.MaxWorkers <= 0 {
		return &ValidationError{Field: "scheduler.max_workers", Value: c.Scheduler.MaxWorkers, Reason: "must be positive"}
	}
	if c.Tracking.DefaultInterval < time.Minute {
		return &ValidationError{
			Field:  "tracking.default_interval",
			Value:  c.Tracking.DefaultInterval,
			Reason: "must be at least 1m",
		}
	}
	return nil
}

// String returns a short human-readable summary without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("driver=%s workers=%d check=%s user_agents=%d proxies=%d redis=%t",
		c.Database.Driver, c.Scheduler.MaxWorkers, c.Scheduler.CheckInterval,
		len(c.Fetcher.UserAgents), len(c.Fetcher.Proxies), c.Redis.Address != "")
}
