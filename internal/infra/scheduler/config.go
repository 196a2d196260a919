// Package scheduler holds the configuration and metrics for the harbor
// process's periodic jobs: the check_feed tick that drives feed syncing and
// the clean_feed_creation janitor.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"feedpipe/pkg/config"
)

// Config controls the harbor scheduler.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// All fields have defaults and validation rules so the scheduler can start
// safely even with invalid or missing configuration.
type Config struct {
	// CheckFeedMinutes is the check_feed tick interval in minutes. It is
	// also the outdate horizon: a feed is due when its last check is older
	// than this interval (plus jitter).
	// Range: 1-1440
	// Default: 30
	CheckFeedMinutes int

	// CheckFeedLimit caps how many due feeds one tick dispatches.
	// Range: 1-10000
	// Default: 500
	CheckFeedLimit int

	// CleanFeedCreationMinutes is the janitor interval in minutes.
	// Range: 1-1440
	// Default: 10
	CleanFeedCreationMinutes int

	// Timezone is the IANA timezone name for the cron scheduler.
	// Example: "UTC", "Asia/Tokyo"
	// Default: "UTC"
	Timezone string

	// HealthPort is the port for the harbor health check HTTP server.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int
}

// DefaultConfig returns production defaults: feeds checked every 30 minutes
// in batches of 500, janitor every 10 minutes, health on 9091.
func DefaultConfig() Config {
	return Config{
		CheckFeedMinutes:         30,
		CheckFeedLimit:           500,
		CleanFeedCreationMinutes: 10,
		Timezone:                 "UTC",
		HealthPort:               9091,
	}
}

// CheckFeedInterval returns the tick interval as a duration.
func (c *Config) CheckFeedInterval() time.Duration {
	return time.Duration(c.CheckFeedMinutes) * time.Minute
}

// CleanFeedCreationInterval returns the janitor interval as a duration.
func (c *Config) CleanFeedCreationInterval() time.Duration {
	return time.Duration(c.CleanFeedCreationMinutes) * time.Minute
}

// Validate checks the configuration values using the reusable validators
// from pkg/config. All failures are collected and returned together.
func (c *Config) Validate() error {
	var errors []error

	if err := config.ValidateIntRange(c.CheckFeedMinutes, 1, 1440); err != nil {
		errors = append(errors, fmt.Errorf("check feed minutes: %w", err))
	}

	if err := config.ValidateIntRange(c.CheckFeedLimit, 1, 10000); err != nil {
		errors = append(errors, fmt.Errorf("check feed limit: %w", err))
	}

	if err := config.ValidateIntRange(c.CleanFeedCreationMinutes, 1, 1440); err != nil {
		errors = append(errors, fmt.Errorf("clean feed creation minutes: %w", err))
	}

	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errors = append(errors, fmt.Errorf("timezone: %w", err))
	}

	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errors = append(errors, fmt.Errorf("health port: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	return nil
}

// LoadConfigFromEnv loads the scheduler configuration from environment
// variables with validation and automatic fallback to defaults on failure.
//
// Fail-open strategy:
//  1. Start from DefaultConfig()
//  2. Load each field from its environment variable
//  3. Validate each loaded value
//  4. On validation failure: keep the default, log a warning, bump metrics
//  5. Never return an error; a mistyped env var must not stop the pipeline
//
// Environment variables:
//   - CHECK_FEED_MINUTES: Integer 1-1440 (default: 30)
//   - CHECK_FEED_LIMIT: Integer 1-10000 (default: 500)
//   - CLEAN_FEED_CREATION_MINUTES: Integer 1-1440 (default: 10)
//   - SCHEDULER_TIMEZONE: IANA timezone name (default: "UTC")
//   - HARBOR_HEALTH_PORT: Integer 1024-65535 (default: 9091)
//
// Metrics updated:
//   - ValidationErrorsTotal / FallbacksTotal per failing field
//   - FallbackActive set while any fallback is in effect
//   - LoadTimestamp set after the load completes
func LoadConfigFromEnv(logger *slog.Logger, metrics *Metrics) (*Config, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	loadInt := func(envKey, field string, dst *int, min, max int) {
		result := config.LoadEnvInt(envKey, *dst, func(v int) error {
			return config.ValidateIntRange(v, min, max)
		})
		*dst = result.Value.(int)
		if result.FallbackApplied {
			fallbackApplied = true
			metrics.RecordValidationError(field)
			metrics.RecordFallback(field, "default")
			for _, warning := range result.Warnings {
				logger.Warn("Configuration fallback applied",
					slog.String("field", field),
					slog.String("warning", warning))
			}
		}
	}

	loadInt("CHECK_FEED_MINUTES", "check_feed_minutes", &cfg.CheckFeedMinutes, 1, 1440)
	loadInt("CHECK_FEED_LIMIT", "check_feed_limit", &cfg.CheckFeedLimit, 1, 10000)
	loadInt("CLEAN_FEED_CREATION_MINUTES", "clean_feed_creation_minutes", &cfg.CleanFeedCreationMinutes, 1, 1440)

	result := config.LoadEnvWithFallback("SCHEDULER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = result.Value.(string)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("timezone")
		metrics.RecordFallback("timezone", "default")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "timezone"),
				slog.String("warning", warning))
		}
	}

	loadInt("HARBOR_HEALTH_PORT", "health_port", &cfg.HealthPort, 1024, 65535)

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()

	// Always return a valid config (fail-open strategy)
	return &cfg, nil
}
