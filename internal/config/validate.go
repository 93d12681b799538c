package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}

	if err := c.Validation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("validation: %w", err))
	}

	if err := c.Export.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("export: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the store configuration.
func (c *StoreConfig) Validate() error {
	var errs []error

	if c.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("max_open_conns must be positive"))
	}

	if c.MaxIdleConns < 0 {
		errs = append(errs, errors.New("max_idle_conns must not be negative"))
	}

	if c.QueryTimeout <= 0 {
		errs = append(errs, errors.New("query_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the validation configuration.
func (c *ValidationConfig) Validate() error {
	var errs []error

	if c.MaxFutureSkew < 0 {
		errs = append(errs, errors.New("max_future_skew must not be negative"))
	}

	if c.MinValidTime.IsZero() {
		errs = append(errs, errors.New("min_valid_time is required"))
	}

	for field, b := range c.Bounds {
		if b.Min > b.Max {
			errs = append(errs, fmt.Errorf("bounds[%s]: min %d greater than max %d", field, b.Min, b.Max))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	switch c.Compression {
	case "", "none", "snappy", "zstd", "lz4", "gzip":
		return nil
	default:
		return fmt.Errorf("unknown compression algorithm %q", c.Compression)
	}
}
