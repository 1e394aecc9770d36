// Package logging provides concrete implementations of the txretry.Logger interface.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// ConsoleLogger writes human-readable log lines through a tint slog handler.
// Safe for concurrent use by multiple goroutines.
type ConsoleLogger struct {
	verbose bool
	log     *slog.Logger
}

// ConsoleOptions tune NewConsoleLoggerTo.
type ConsoleOptions struct {
	Verbose bool
	Color   bool
	// OmitTime drops the timestamp, which keeps output stable for tests.
	OmitTime bool
}

// NewConsoleLogger creates a ConsoleLogger on stderr, coloured when stderr is a terminal.
// If verbose is true, Verbose() calls will produce output.
func NewConsoleLogger(verbose bool) *ConsoleLogger {
	return NewConsoleLoggerTo(os.Stderr, ConsoleOptions{
		Verbose: verbose,
		Color:   term.IsTerminal(int(os.Stderr.Fd())),
	})
}

// NewConsoleLoggerTo creates a ConsoleLogger writing to w.
func NewConsoleLoggerTo(w io.Writer, opts ConsoleOptions) *ConsoleLogger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var replace func(groups []string, a slog.Attr) slog.Attr
	if opts.OmitTime {
		replace = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  time.TimeOnly,
		NoColor:     !opts.Color,
		ReplaceAttr: replace,
	})
	return &ConsoleLogger{
		verbose: opts.Verbose,
		log:     slog.New(handler),
	}
}

// Verbose logs detailed diagnostic information if verbose mode is enabled.
func (l *ConsoleLogger) Verbose(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.emit(slog.LevelDebug, format, args)
}

// Info logs informational messages about normal operations.
func (l *ConsoleLogger) Info(format string, args ...interface{}) {
	l.emit(slog.LevelInfo, format, args)
}

// Warn logs recoverable problems.
func (l *ConsoleLogger) Warn(format string, args ...interface{}) {
	l.emit(slog.LevelWarn, format, args)
}

// Error logs error messages.
func (l *ConsoleLogger) Error(format string, args ...interface{}) {
	l.emit(slog.LevelError, format, args)
}

func (l *ConsoleLogger) emit(level slog.Level, format string, args []interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.log.Log(context.Background(), level, msg)
}
