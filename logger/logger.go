package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

func prefix() string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#f5f3f2")).
		Background(lipgloss.Color("#2c70b0")).
		Bold(true).
		Padding(0, 1).
		Render("ani-gogo")
}

// New builds the application logger. Unknown levels fall back to info.
// Timestamps and callers are only reported at debug level.
func New(level string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	debug := lvl <= log.DebugLevel

	l := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          prefix(),
		ReportTimestamp: debug,
		ReportCaller:    debug,
		TimeFormat:      "15:04:05",
	})
	return l
}

// Discard is used by tests and by components created without a logger.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDefault returns l, or the package default logger when l is nil.
func OrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
