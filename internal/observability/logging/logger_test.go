package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_LevelFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		debugOn  bool
		warnOn   bool
	}{
		{name: "default is info", logLevel: "", debugOn: false, warnOn: true},
		{name: "debug enables debug", logLevel: "debug", debugOn: true, warnOn: true},
		{name: "warn filters info", logLevel: "warn", debugOn: false, warnOn: true},
		{name: "error filters warn", logLevel: "error", debugOn: false, warnOn: false},
		{name: "garbage falls back to info", logLevel: "verbose", debugOn: false, warnOn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.logLevel)

			logger := NewLogger()
			require.NotNil(t, logger)

			ctx := context.Background()
			assert.Equal(t, tt.debugOn, logger.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.warnOn, logger.Enabled(ctx, slog.LevelWarn))
		})
	}
}

func TestNewTextLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	logger := NewTextLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	logger := WithFields(base, map[string]any{
		"actor":    "feed_checker",
		"attempts": 3,
		"dry_run":  true,
	})
	logger.Info("checking feeds")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "checking feeds", entry["msg"])
	assert.Equal(t, "feed_checker", entry["actor"])
	assert.Equal(t, float64(3), entry["attempts"])
	assert.Equal(t, true, entry["dry_run"])
}

func TestWithFields_Empty(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	WithFields(base, map[string]any{}).Info("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "plain", entry["msg"])
}

func TestFromContext_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil)).With(
		slog.String("message_id", "01J0example"))

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("handled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "handled", entry["msg"])
	assert.Equal(t, "01J0example", entry["message_id"])
}

func TestFromContext_Fallback(t *testing.T) {
	// Bare context falls back to the process default.
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	// A foreign value under some other key must not confuse the lookup.
	ctx := context.WithValue(context.Background(), struct{ k string }{"logger"}, "not a logger")
	assert.Same(t, slog.Default(), FromContext(ctx))
}
