package gobounce

import (
	"log"
	"log/slog"
)

// Logger interface is provided
// to allow you to customize the logging internally done
// by the controllers.
//
// The default implementation writes warnings and errors
// to the "log" standard module via log.Default();
// debug and info lines are dropped unless the logger
// was built with NewStdLogger(true).
//
// If you want to disable logging entirely
// you can pass gobounce.NewNoOpLogger() with the WithLogger option.
type Logger interface {
	Debug(string)
	Info(string)
	Warning(string)
	Error(string)
}

// NewStdLogger returns the default Logger implementation.
// When verbose is true, debug and info lines are written too.
func NewStdLogger(verbose bool) Logger {
	return &stdLogger{verbose: verbose}
}

type stdLogger struct {
	verbose bool
}

func (l *stdLogger) write(level, text string) {
	log.Default().Printf("gobounce [%s] %s", level, text)
}

func (l *stdLogger) Debug(text string) {
	if l.verbose {
		l.write("debug", text)
	}
}
func (l *stdLogger) Info(text string) {
	if l.verbose {
		l.write("info", text)
	}
}
func (l *stdLogger) Warning(text string) {
	l.write("WARNING", text)
}
func (l *stdLogger) Error(text string) {
	l.write("ERROR", text)
}

func NewNoOpLogger() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Debug(string)   {}
func (noOpLogger) Info(string)    {}
func (noOpLogger) Warning(string) {}
func (noOpLogger) Error(string)   {}

// NewSlogLogger bridges a structured slog.Logger to the Logger interface.
// A nil logger falls back to slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{log: l.With("component", "gobounce")}
}

type slogLogger struct {
	log *slog.Logger
}

func (l *slogLogger) Debug(text string) {
	l.log.Debug(text)
}
func (l *slogLogger) Info(text string) {
	l.log.Info(text)
}
func (l *slogLogger) Warning(text string) {
	l.log.Warn(text)
}
func (l *slogLogger) Error(text string) {
	l.log.Error(text)
}
