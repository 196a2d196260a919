package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvWithFallback(t *testing.T) {
	t.Run("unset uses default silently", func(t *testing.T) {
		result := LoadEnvWithFallback("FEEDPIPE_TEST_TZ_UNSET", "UTC", ValidateTimezone)

		assert.Equal(t, "UTC", result.Value)
		assert.False(t, result.FallbackApplied)
		assert.Empty(t, result.Warnings)
	})

	t.Run("valid value passes through", func(t *testing.T) {
		t.Setenv("FEEDPIPE_TEST_TZ", "Asia/Tokyo")

		result := LoadEnvWithFallback("FEEDPIPE_TEST_TZ", "UTC", ValidateTimezone)

		assert.Equal(t, "Asia/Tokyo", result.Value)
		assert.False(t, result.FallbackApplied)
	})

	t.Run("rejected value falls back with warning", func(t *testing.T) {
		t.Setenv("FEEDPIPE_TEST_TZ", "Not/AZone")

		result := LoadEnvWithFallback("FEEDPIPE_TEST_TZ", "UTC", ValidateTimezone)

		assert.Equal(t, "UTC", result.Value)
		assert.True(t, result.FallbackApplied)
		require.Len(t, result.Warnings, 1)
		assert.True(t, strings.HasPrefix(result.Warnings[0], "Invalid FEEDPIPE_TEST_TZ='Not/AZone':"))
		assert.Contains(t, result.Warnings[0], "falling back to default 'UTC'")
	})

	t.Run("nil validator accepts anything", func(t *testing.T) {
		t.Setenv("FEEDPIPE_TEST_TZ", "whatever")

		result := LoadEnvWithFallback("FEEDPIPE_TEST_TZ", "UTC", nil)

		assert.Equal(t, "whatever", result.Value)
		assert.False(t, result.FallbackApplied)
	})
}

func TestLoadEnvInt(t *testing.T) {
	rangeValidator := func(v int) error { return ValidateIntRange(v, 1, 1440) }

	t.Run("unset uses default silently", func(t *testing.T) {
		result := LoadEnvInt("FEEDPIPE_TEST_MIN_UNSET", 30, rangeValidator)

		assert.Equal(t, 30, result.Value)
		assert.False(t, result.FallbackApplied)
		assert.Empty(t, result.Warnings)
	})

	t.Run("valid value passes through typed", func(t *testing.T) {
		t.Setenv("FEEDPIPE_TEST_MIN", "15")

		result := LoadEnvInt("FEEDPIPE_TEST_MIN", 30, rangeValidator)

		got, ok := result.Value.(int)
		require.True(t, ok)
		assert.Equal(t, 15, got)
		assert.False(t, result.FallbackApplied)
	})

	t.Run("non-numeric falls back with warning", func(t *testing.T) {
		t.Setenv("FEEDPIPE_TEST_MIN", "many")

		result := LoadEnvInt("FEEDPIPE_TEST_MIN", 30, rangeValidator)

		assert.Equal(t, 30, result.Value)
		assert.True(t, result.FallbackApplied)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "invalid integer format")
	})

	t.Run("out of range falls back with warning", func(t *testing.T) {
		t.Setenv("FEEDPIPE_TEST_MIN", "0")

		result := LoadEnvInt("FEEDPIPE_TEST_MIN", 30, rangeValidator)

		assert.Equal(t, 30, result.Value)
		assert.True(t, result.FallbackApplied)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "below minimum")
	})

	t.Run("nil validator only requires an integer", func(t *testing.T) {
		t.Setenv("FEEDPIPE_TEST_MIN", "-5")

		result := LoadEnvInt("FEEDPIPE_TEST_MIN", 30, nil)

		assert.Equal(t, -5, result.Value)
		assert.False(t, result.FallbackApplied)
	})
}
