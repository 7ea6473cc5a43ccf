// Package logging builds the structured loggers used across filingcheck.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options selects the handler.
type Options struct {
	Verbose bool
	JSON    bool
	Output  io.Writer // defaults to os.Stderr
}

// New returns a logger writing to opts.Output at Info level, or Debug when
// verbose.
func New(opts Options) *slog.Logger {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Component tags l with a component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", name)
}
