// Package config provides configuration for the apcstore ingestion core.
//
// The surrounding process supplies a single opaque configuration object;
// recognized options cover the store backend, the validator's plausibility
// bounds and the export writer. Everything has a documented default so an
// empty config is usable.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete apcstore configuration.
type Config struct {
	// Store configures the DuckDB-backed reading store.
	Store StoreConfig `yaml:"store"`

	// Validation configures the reading validator.
	Validation ValidationConfig `yaml:"validation"`

	// Export configures Parquet snapshot exports.
	Export ExportConfig `yaml:"export"`
}

// StoreConfig configures the reading store backend.
type StoreConfig struct {
	// Path is the DuckDB database file. Empty means in-memory.
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// QueryTimeout is the default timeout applied to store calls that
	// arrive without a caller deadline. A timed-out insert surfaces as
	// a retryable unavailable error.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// ValidationConfig configures timestamp and range plausibility checks.
type ValidationConfig struct {
	// MaxFutureSkew is the clock-skew tolerance for measurement times
	// ahead of the ingesting host's clock.
	MaxFutureSkew time.Duration `yaml:"max_future_skew"`

	// MinValidTime is the configured epoch; measurement times before it
	// are rejected.
	MinValidTime time.Time `yaml:"min_valid_time"`

	// Bounds overrides the per-field plausible ranges. Fields not listed
	// keep their datasheet defaults.
	Bounds map[string]Bound `yaml:"bounds"`
}

// Bound is an inclusive plausible range for one sensor field.
type Bound struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// ExportConfig configures Parquet exports.
type ExportConfig struct {
	// Dir is the directory export files are written to.
	Dir string `yaml:"dir"`

	// Compression is the Parquet compression algorithm:
	// snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Validation: ValidationConfig{
			MaxFutureSkew: 5 * time.Minute,
			MinValidTime:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Export: ExportConfig{
			Dir:         "export",
			Compression: "zstd",
		},
	}
}

// Load reads a YAML config file, overlaying it on the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
