package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Logger receives the progress lines of a run.
type Logger interface {
	Info(format string, a ...any)
	Error(format string, a ...any)
}

type consoleLogger struct {
	out  io.Writer
	info *color.Color
	warn *color.Color
}

// newConsoleLogger writes INFO/ERROR lines to stdout. Colors are dropped when
// noColor is set or stdout is not a terminal.
func newConsoleLogger(noColor bool) *consoleLogger {
	if noColor {
		color.NoColor = true
	}

	return &consoleLogger{
		out:  os.Stdout,
		info: color.New(color.FgCyan),
		warn: color.New(color.FgRed, color.Bold),
	}
}

func (l *consoleLogger) Info(format string, a ...any) {
	l.info.Fprint(l.out, "INFO:")
	fmt.Fprintf(l.out, " "+format+"\n", a...)
}

func (l *consoleLogger) Error(format string, a ...any) {
	l.warn.Fprint(l.out, "ERROR:")
	fmt.Fprintf(l.out, " "+format+"\n", a...)
}

type discardLogger struct{}

func (discardLogger) Info(_ string, _ ...any) {}

func (discardLogger) Error(_ string, _ ...any) {}
