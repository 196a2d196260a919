// Package config provides environment variable helpers shared by every
// process of the pipeline.
//
// Two families cover two needs. The GetEnv* functions return a usable value
// directly and log a warning when the variable is malformed; they suit
// call sites that have no use for the failure details, like pool sizing.
// The LoadEnv* functions return a ConfigLoadResult carrying the warnings and
// a fallback flag, for loaders that surface configuration problems through
// logs and metrics.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// GetEnvString returns the value of an environment variable, or the default
// when the variable is unset or empty. No validation, no warnings.
func GetEnvString(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt returns the value of an environment variable parsed as an
// integer. Unset means the default; a value that does not parse also means
// the default, with a warning logged.
func GetEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("invalid integer value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", valueStr),
			slog.Int("default", defaultValue))
		return defaultValue
	}
	return value
}

// GetEnvBool returns the value of an environment variable parsed as a
// boolean, accepting the forms strconv.ParseBool accepts ("1", "t", "true",
// "TRUE", ...). Unset or unparseable means the default, the latter with a
// warning logged.
func GetEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		slog.Warn("invalid boolean value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", valueStr),
			slog.Bool("default", defaultValue))
		return defaultValue
	}
	return value
}

// GetEnvDuration returns the value of an environment variable parsed as a
// time.Duration ("30s", "5m", "1h30m"). Unset or unparseable means the
// default, the latter with a warning logged.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		slog.Warn("invalid duration value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", valueStr),
			slog.String("default", defaultValue.String()))
		return defaultValue
	}
	return value
}
