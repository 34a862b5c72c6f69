package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"mixed case", "DeBuG", slog.LevelDebug},
		{"padded", "  info  ", slog.LevelInfo},
		{"unknown falls back to info", "verbose", slog.LevelInfo},
		{"empty falls back to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	logger := NewLogger(Config{Level: "warn"})
	require.NotNil(t, logger)

	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.True(t, logger.Enabled(ctx, slog.LevelError))
}

func TestNewLoggerPrettyAndJSON(t *testing.T) {
	pretty := NewLogger(Config{Level: "info", Pretty: true})
	require.NotNil(t, pretty)
	assert.IsType(t, &slog.TextHandler{}, pretty.Handler())

	structured := NewLogger(Config{Level: "info"})
	require.NotNil(t, structured)
	assert.IsType(t, &slog.JSONHandler{}, structured.Handler())
}
