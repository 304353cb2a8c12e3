// Package xlog is a thin per-component logging facade over
// gopkg.in/op/go-logging.v1. New(module) returns a logger tagged with
// the calling component's name; callers use Infof/Warningf/Errorf the
// same way regardless of which component owns the logger.
package xlog

import (
	"os"

	"gopkg.in/op/go-logging.v1"
)

var backendOnce = logging.NewLogBackend(os.Stderr, "", 0)

func init() {
	formatter := logging.MustStringFormatter(
		`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`,
	)
	logging.SetBackend(logging.NewBackendFormatter(backendOnce, formatter))
	logging.SetLevel(logging.INFO, "")
}

// Logger is a per-module leveled logger.
type Logger struct {
	l *logging.Logger
}

// New returns a Logger tagged with module, e.g. "send" or "recv".
func New(module string) *Logger {
	return &Logger{l: logging.MustGetLogger(module)}
}

func (lg *Logger) Debugf(format string, args ...any)   { lg.l.Debugf(format, args...) }
func (lg *Logger) Infof(format string, args ...any)    { lg.l.Infof(format, args...) }
func (lg *Logger) Warningf(format string, args ...any) { lg.l.Warningf(format, args...) }
func (lg *Logger) Errorf(format string, args ...any)   { lg.l.Errorf(format, args...) }

// SetLevel adjusts the verbosity for every Logger created by this package
// (the underlying library's levels are process-global per module name).
func SetLevel(level logging.Level, module string) { logging.SetLevel(level, module) }
