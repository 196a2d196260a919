package config

import (
	"fmt"
	"time"
)

// ValidateIntRange checks that value lies in [min, max].
// The error names the offending bound, which makes the loader warnings
// actionable without reading code.
func ValidateIntRange(value, min, max int) error {
	if min > max {
		return fmt.Errorf("invalid range: min (%d) cannot be greater than max (%d)", min, max)
	}
	if value < min {
		return fmt.Errorf("value %d is below minimum %d", value, min)
	}
	if value > max {
		return fmt.Errorf("value %d exceeds maximum %d", value, max)
	}
	return nil
}

// ValidateTimezone checks that timezone is an IANA name the runtime can
// load ("UTC", "Asia/Tokyo"). Loading depends on tzdata being present, so
// this can fail in a container image stripped of zoneinfo even for a
// correctly spelled zone.
func ValidateTimezone(timezone string) error {
	if timezone == "" {
		return fmt.Errorf("invalid timezone: cannot be empty")
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", timezone, err)
	}
	return nil
}
