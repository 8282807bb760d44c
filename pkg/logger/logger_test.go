package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	assert.Equal(t, "warn", LevelFromVerbosity(0))
	assert.Equal(t, "info", LevelFromVerbosity(1))
	assert.Equal(t, "debug", LevelFromVerbosity(2))
	assert.Equal(t, "debug", LevelFromVerbosity(5))
}

func TestSetupWriter(t *testing.T) {
	assert.Equal(t, os.Stderr, SetupWriter(Config{Output: "stderr"}))
	assert.Equal(t, os.Stdout, SetupWriter(Config{Output: "stdout"}))
	assert.Equal(t, os.Stderr, SetupWriter(Config{Output: ""}))
	assert.Equal(t, os.Stdout, SetupWriter(Config{Output: "file"}))
}

func TestNewLogger(t *testing.T) {
	cfg := Config{Level: "info", Format: "json", Output: "stdout"}
	l := NewLogger(cfg)
	require.NotNil(t, l)
	l.Info("test message", "key", "value")
}

func TestGenerateInvocationID(t *testing.T) {
	id1 := GenerateInvocationID()
	id2 := GenerateInvocationID()

	assert.NotEqual(t, id1, id2)
	assert.True(t, strings.HasPrefix(id1, "inv_"))
	assert.Greater(t, len(id1), 5)
}

func TestWithInvocationID(t *testing.T) {
	ctx := WithInvocationID(context.Background(), "test-invocation-id")
	assert.Equal(t, "test-invocation-id", InvocationIDFromContext(ctx))
}

func TestInvocationIDFromContextEmpty(t *testing.T) {
	assert.Equal(t, "", InvocationIDFromContext(context.Background()))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := WithInvocationID(context.Background(), "test-id")
	FromContext(ctx, base).Info("test message")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test-id", entry["invocation_id"])

	buf.Reset()
	FromContext(context.Background(), base).Info("test message")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, exists := entry["invocation_id"]
	assert.False(t, exists)
}
