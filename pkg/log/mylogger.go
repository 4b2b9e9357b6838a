// Package log builds the application-wide structured logger from the
// CLI's output destination and level flags.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects where log output goes and at what level.
type Options struct {
	// Stdout, when true, writes to stdout in addition to (or instead of) Path.
	Stdout bool
	// Path, if set, writes to this file.
	Path string
	// Level is one of TRACE, DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string
}

// Configure builds an *slog.Logger per opts. TRACE maps to slog's Debug
// level since slog has no level below it.
func Configure(opts *Options) *slog.Logger {
	var writer io.Writer
	switch {
	case opts.Path != "":
		logfile, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o666)
		if err != nil {
			panic(err)
		}
		if opts.Stdout {
			writer = io.MultiWriter(logfile, os.Stdout)
		} else {
			writer = logfile
		}
	case opts.Stdout:
		writer = os.Stdout
	default:
		writer, _ = os.OpenFile(os.DevNull, os.O_APPEND, 0o666)
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: parseLevel(opts.Level)})
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "TRACE", "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
