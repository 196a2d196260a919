package config

import (
	"fmt"
	"os"
	"strconv"
)

// ConfigLoadResult is the outcome of loading one configuration value.
// Value always holds something usable: the parsed environment value when it
// was valid, the caller's default otherwise. FallbackApplied tells the two
// cases apart and Warnings carries one message per applied fallback, ready
// for logging.
type ConfigLoadResult struct {
	Value           any
	Warnings        []string
	FallbackApplied bool
}

// fallback builds the result for a rejected value.
func fallback(envKey, raw string, err error, defaultValue any) ConfigLoadResult {
	return ConfigLoadResult{
		Value: defaultValue,
		Warnings: []string{fmt.Sprintf(
			"Invalid %s='%s': %v, falling back to default '%v'",
			envKey, raw, err, defaultValue)},
		FallbackApplied: true,
	}
}

// LoadEnvWithFallback loads a string value from an environment variable,
// validating it with validator (nil skips validation). An unset or empty
// variable yields the default silently; a value the validator rejects yields
// the default with a warning. The function never returns an error: a
// mistyped environment variable must not stop a process from starting.
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) ConfigLoadResult {
	value := os.Getenv(envKey)
	if value == "" {
		return ConfigLoadResult{Value: defaultValue}
	}
	if validator != nil {
		if err := validator(value); err != nil {
			return fallback(envKey, value, err, defaultValue)
		}
	}
	return ConfigLoadResult{Value: value}
}

// LoadEnvInt loads an integer value from an environment variable, validating
// the parsed value with validator (nil skips validation). Unset yields the
// default silently; an unparseable or rejected value yields the default with
// a warning. Never returns an error, same fail-open contract as
// LoadEnvWithFallback.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) ConfigLoadResult {
	valueStr := os.Getenv(envKey)
	if valueStr == "" {
		return ConfigLoadResult{Value: defaultValue}
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback(envKey, valueStr, fmt.Errorf("invalid integer format"), defaultValue)
	}
	if validator != nil {
		if err := validator(value); err != nil {
			return fallback(envKey, valueStr, err, defaultValue)
		}
	}
	return ConfigLoadResult{Value: value}
}
