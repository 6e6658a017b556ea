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

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		valid bool
	}{
		{"trace", LevelTrace, true},
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"", slog.LevelInfo, false},
		{"loud", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
			assert.Equal(t, tt.valid, ValidLevel(tt.input))
		})
	}
}

func TestTraceLevelIsLabelled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "event", "id", "a1-1")
	assert.Contains(t, buf.String(), "level=TRACE")
	assert.Contains(t, buf.String(), "id=a1-1")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", &buf)
	logger.Debug("hidden")
	logger.Log(context.Background(), LevelTrace, "hidden too")
	assert.Empty(t, buf.String())

	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	NewJSONLogger("debug", &buf).Debug("tick report", "tick", 10)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "DEBUG", line["level"])
	assert.Equal(t, float64(10), line["tick"])
}
