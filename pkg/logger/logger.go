// Package logger builds the process-wide slog logger and provides the
// attribute helpers every package uses for structured fields.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

// Module provides *slog.Logger to the fx graph.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// NewLogger creates a logger configured from the environment.
//
// LOG_LEVEL selects debug, info, warn (or warning) and error; anything else
// falls back to info. GO_ENV=production switches to JSON output.
func NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("GO_ENV"), "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Scope tags log lines with the component that produced them.
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// Error attaches err under the "error" key.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
