package config

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Component names must be unique per test: promauto registers against the
// default registry and a duplicate name panics.

func TestNewConfigMetrics(t *testing.T) {
	m := NewConfigMetrics("cfgtest_new")
	require.NotNil(t, m)

	assert.Equal(t, float64(0), testutil.ToFloat64(m.LoadTimestamp))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FallbackActive))
}

func TestConfigMetrics_RecordLoadTimestamp(t *testing.T) {
	m := NewConfigMetrics("cfgtest_load")

	m.RecordLoadTimestamp()

	assert.Greater(t, testutil.ToFloat64(m.LoadTimestamp), float64(0))
}

func TestConfigMetrics_RecordValidationError(t *testing.T) {
	m := NewConfigMetrics("cfgtest_verr")

	m.RecordValidationError("timezone")
	m.RecordValidationError("timezone")
	m.RecordValidationError("health_port")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues("timezone")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues("health_port")))
}

func TestConfigMetrics_RecordFallback(t *testing.T) {
	m := NewConfigMetrics("cfgtest_fb")

	m.RecordFallback("timezone", "default")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("timezone")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("health_port")))
}

func TestConfigMetrics_SetFallbackActive(t *testing.T) {
	m := NewConfigMetrics("cfgtest_active")

	m.SetFallbackActive("timezone", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbackActive))

	m.SetFallbackActive("timezone", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FallbackActive))
}
