// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New returns a Config populated with defaults.
// - Load layers defaults, an optional YAML file and PITWALL_ env vars.
// - Errors returned from this package wrap ErrInvalidConfig or ErrLoadConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Store drivers understood by the service.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver picks the persistent store: sqlite, postgres or memory.
	StoreDriver string `koanf:"store_driver"`

	// DatabaseURL is the DSN handed to database/sql. Ignored for memory.
	DatabaseURL string `koanf:"database_url"`

	// MaxOpenConns bounds the database/sql pool.
	MaxOpenConns int `koanf:"max_open_conns"`

	// RequestTimeoutMS bounds each HTTP request, including its transaction.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// ReorderRetryBackoffMS is the minimum wait before retrying a reorder
	// that failed on a transient store error.
	ReorderRetryBackoffMS int `koanf:"reorder_retry_backoff_ms"`

	// MaxReorderEntries caps the length of a reorder request.
	MaxReorderEntries int `koanf:"max_reorder_entries"`

	// RecentLapsDefault and RecentLapsMax bound the driver summary's recent list.
	RecentLapsDefault int `koanf:"recent_laps_default"`
	RecentLapsMax     int `koanf:"recent_laps_max"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		StoreDriver:           DriverSQLite,
		DatabaseURL:           "file:pitwall.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate",
		MaxOpenConns:          1,
		RequestTimeoutMS:      10_000,
		ReorderRetryBackoffMS: 50,
		MaxReorderEntries:     500,
		RecentLapsDefault:     10,
		RecentLapsMax:         100,
	}
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// ReorderRetryBackoff returns ReorderRetryBackoffMS as a duration.
func (c *Config) ReorderRetryBackoff() time.Duration {
	return time.Duration(c.ReorderRetryBackoffMS) * time.Millisecond
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MaxOpenConns < 1:
		return fmt.Errorf("%w: max_open_conns must be positive", ErrInvalidConfig)
	case c.RequestTimeoutMS < 1:
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	case c.ReorderRetryBackoffMS < 0:
		return fmt.Errorf("%w: reorder_retry_backoff_ms must not be negative", ErrInvalidConfig)
	case c.MaxReorderEntries < 1:
		return fmt.Errorf("%w: max_reorder_entries must be positive", ErrInvalidConfig)
	case c.RecentLapsDefault < 0 || c.RecentLapsMax < c.RecentLapsDefault:
		return fmt.Errorf("%w: recent_laps_default must be within [0, recent_laps_max]", ErrInvalidConfig)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("%w: database_url is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
