// Package observability configures structured logging and OpenTelemetry
// instrumentation for the client.
//
// Action metrics are recorded through the global meter provider. Until
// InitTelemetry installs the SDK provider (tracing.enabled in config) they
// go to the OpenTelemetry no-op meter.
package observability

import (
	"io"
	"log/slog"
	"strings"
)

// LogOptions selects the slog handler and level.
type LogOptions struct {
	Level  string // debug | info | warn | error
	Format string // text | json
	Output io.Writer
}

// ParseLevel maps a level name to slog.Level, defaulting to warn.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// InitLogger installs the default slog logger and returns it.
func InitLogger(opts LogOptions) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(opts.Output, hopts)
	} else {
		handler = slog.NewTextHandler(opts.Output, hopts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
