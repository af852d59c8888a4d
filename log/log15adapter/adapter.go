// Package log15adapter provides a logger that writes to a github.com/inconshreveable/log15.Logger
// log.
package log15adapter

import (
	"context"

	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

// Log15Logger interface defines the subset of
// github.com/inconshreveable/log15.Logger that this adapter uses.
type Log15Logger interface {
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
}

type Logger struct {
	l Log15Logger
}

func NewLogger(l Log15Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	logArgs := make([]any, 0, len(data)*2)
	for k, v := range data {
		logArgs = append(logArgs, k, v)
	}

	switch level {
	case tracelog.LogLevelTrace:
		l.l.Debug(msg, append(logArgs, "C3P0_LOG_LEVEL", level)...)
	case tracelog.LogLevelDebug:
		l.l.Debug(msg, logArgs...)
	case tracelog.LogLevelInfo:
		l.l.Info(msg, logArgs...)
	case tracelog.LogLevelWarn:
		l.l.Warn(msg, logArgs...)
	case tracelog.LogLevelError:
		l.l.Error(msg, logArgs...)
	default:
		l.l.Error(msg, append(logArgs, "INVALID_C3P0_LOG_LEVEL", level)...)
	}
}
