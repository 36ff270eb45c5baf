package logger

import (
	"context"
	"io"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

type Fields map[string]any

type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...any)
	Info(msg string)
	Infof(format string, args ...any)
	Warn(msg string)
	Warnf(format string, args ...any)
	Error(msg string)
	Errorf(format string, args ...any)
	Fatal(msg string)
	Fatalf(format string, args ...any)

	WithField(key string, value any) Logger
	WithFields(fields Fields) Logger
	WithContext(ctx context.Context) Logger

	SetLevel(level Level)
	SetOutput(output io.Writer)
}

// Nop returns a Logger that discards everything. Meant for tests.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string)                         {}
func (nopLogger) Debugf(string, ...any)                {}
func (nopLogger) Info(string)                          {}
func (nopLogger) Infof(string, ...any)                 {}
func (nopLogger) Warn(string)                          {}
func (nopLogger) Warnf(string, ...any)                 {}
func (nopLogger) Error(string)                         {}
func (nopLogger) Errorf(string, ...any)                {}
func (nopLogger) Fatal(string)                         {}
func (nopLogger) Fatalf(string, ...any)                {}
func (n nopLogger) WithField(string, any) Logger       { return n }
func (n nopLogger) WithFields(Fields) Logger           { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (nopLogger) SetLevel(Level)                       {}
func (nopLogger) SetOutput(io.Writer)                  {}
