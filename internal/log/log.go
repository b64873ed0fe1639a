// Package log configures the process-wide slog logger. All output goes to
// stderr so the stdio MCP transport keeps stdout to itself.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Options controls logger construction.
type Options struct {
	Verbose bool
	Quiet   bool
	JSON    bool      // emit JSON records instead of logfmt-style text
	Output  io.Writer // defaults to os.Stderr
}

// Level maps the verbosity flags to a slog level. Quiet wins over verbose.
func (o Options) Level() slog.Level {
	switch {
	case o.Quiet:
		return slog.LevelWarn
	case o.Verbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Setup builds a logger from opts and installs it as the slog default.
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level()}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
