package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configuration level string onto a slog.Level.
// "debug", "info", "warn"/"warning" and "error" are accepted case-insensitively;
// anything else falls back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// NewLogger builds a logger writing to w.
//
// format: "json"  → JSONHandler (machine readable)
//
//	anything else → TextHandler (human readable)
func NewLogger(format, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug, // file:line only when debugging
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupLogger installs a logger built by NewLogger as the slog default so every
// slog.Info/Warn/Error call in the session coordinator uses it. A nil writer
// means stdout.
func SetupLogger(format, level string, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(NewLogger(format, level, w))
	slog.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
}
