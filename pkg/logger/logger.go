// Package logger builds the zerolog loggers shared by the API server and
// the background workers.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "finguard-ledger"

// New returns the process logger writing to stdout. Pretty output is meant
// for local runs; production keeps one JSON object per line.
func New(level string, pretty bool) zerolog.Logger {
	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return base(level, w).With().Caller().Logger()
}

// NewWithWriter returns a JSON logger writing to w, without caller info.
func NewWithWriter(level string, w io.Writer) zerolog.Logger {
	return base(level, w)
}

func base(level string, w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Component tags log with the subsystem that writes through it, e.g.
// "transfer", "sweep" or "mirror".
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// ParseLevel maps a configured level name to a zerolog level. Unknown and
// empty names fall back to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
