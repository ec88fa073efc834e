// Package logging configures the process-wide structured logger.
//
// Diagnostic output goes to stderr so it never mixes with the training
// process output or the machine-readable command results on stdout. On a
// terminal the handler renders colored, human-oriented lines; when stderr
// is redirected (CI, cron, `2>err.log`) it falls back to plain text.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// NewTerminalHandler returns a slog handler writing to stderr, colored
// only when stderr is an interactive terminal.
func NewTerminalHandler(level slog.Level) slog.Handler {
	return NewHandler(os.Stderr, level, isTerminal(os.Stderr))
}

// NewHandler builds the tint handler with the given destination and color
// mode. Split out from NewTerminalHandler so tests can capture output.
func NewHandler(w io.Writer, level slog.Level, color bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		NoColor:    !color,
		TimeFormat: time.Kitchen,
	})
}

// Setup installs the terminal handler as the process default logger.
// verbose lowers the threshold to Debug; the default Info level keeps the
// launcher quiet unless something needs attention.
func Setup(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(NewTerminalHandler(level))
	slog.SetDefault(logger)
	return logger
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
