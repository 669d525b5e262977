package telemetry

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a Log.Level configuration value ("debug", "info",
// "warn", "error", case-insensitive) to a slog.Level. Defaults to Info
// for an empty or unrecognized value.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger initializes and installs the global logger from the
// resolved Log.Level/Log.Format configuration values — not from ambient
// LOG_LEVEL/LOG_FORMAT environment variables directly, so that the
// flag > env > file > default precedence config.Load already applies
// governs logging the same way it governs every other option.
//
// format selects the handler:
//   - "json" (default) — structured JSON, for production
//   - "text" — human-readable, for local development
func SetupLogger(level, format string) *slog.Logger {
	parsedLevel := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     parsedLevel,
		AddSource: parsedLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

type ctxKey string

// CtxLogger is the context key under which a scoped logger is stored.
const CtxLogger ctxKey = "logger"

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext returns the logger attached to ctx, or the global default
// if none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithRunID returns logger with run_id attached.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithChannelID returns logger with channel_id attached.
func WithChannelID(logger *slog.Logger, channelID string) *slog.Logger {
	return logger.With("channel_id", channelID)
}

// WithWorkerID returns logger with worker_id attached.
func WithWorkerID(logger *slog.Logger, workerID string) *slog.Logger {
	return logger.With("worker_id", workerID)
}
