// Package logging sets up the engine's structured logger. Grounded on the
// teacher's logger.go/monitoring setup (zerolog, console-friendly in dev),
// collapsed to the single sink the engine needs rather than the teacher's
// pluggable sink registry — per SPEC_FULL.md, a richer observability
// surface is the host's concern, not the core engine's.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger at the given level name ("debug", "info",
// "warn", "error"; anything else falls back to "info"), writing to w.
// Passing nil for w defaults to a console writer over os.Stderr, matching
// the teacher's development-mode logger.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
