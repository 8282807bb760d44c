// Package logger provides structured logging functionality using slog.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// InvocationIDKey is the context key for a command invocation's id.
	InvocationIDKey ContextKey = "invocation_id"
)

// Config holds logger configuration.
type Config struct {
	Level      string
	Format     string
	Output     string
	Filename   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// NewLogger creates a new structured logger based on configuration.
func NewLogger(cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)
	writer := SetupWriter(cfg)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler)
}

// ParseLevel parses string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromVerbosity maps a CLI -v repeat count to a level string
// accepted by ParseLevel: 0 warnings-only, 1 info, 2+ debug. Mirrors the
// donor's convention of one level step per -v.
func LevelFromVerbosity(v int) string {
	switch {
	case v <= 0:
		return "warn"
	case v == 1:
		return "info"
	default:
		return "debug"
	}
}

// SetupWriter configures the output writer based on configuration.
func SetupWriter(cfg Config) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
	case "stderr", "":
		return os.Stderr
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}

// GenerateInvocationID generates a unique id for one command invocation,
// attached to every diagnostic line a command emits so a user filing a
// bug report can correlate them across a log file.
func GenerateInvocationID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("inv_%d", time.Now().UnixNano())
	}
	return "inv_" + hex.EncodeToString(bytes)
}

// WithInvocationID attaches an invocation id to ctx.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, InvocationIDKey, id)
}

// InvocationIDFromContext extracts the invocation id from ctx, if any.
func InvocationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(InvocationIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns logger tagged with ctx's invocation id, if present.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := InvocationIDFromContext(ctx); id != "" {
		return logger.With("invocation_id", id)
	}
	return logger
}
