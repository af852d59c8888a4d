// Package tracelog provides the leveled logging interface used by the pool, its sub-pools and their background tasks.
package tracelog

import (
	"context"
	"errors"
	"fmt"
)

// LogLevel represents the logging level. See LogLevel* constants for possible values.
type LogLevel int

// The values for log levels are chosen such that the zero value means that no
// log level was specified.
const (
	LogLevelTrace = LogLevel(6)
	LogLevelDebug = LogLevel(5)
	LogLevelInfo  = LogLevel(4)
	LogLevelWarn  = LogLevel(3)
	LogLevelError = LogLevel(2)
	LogLevelNone  = LogLevel(1)
)

func (ll LogLevel) String() string {
	switch ll {
	case LogLevelTrace:
		return "trace"
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	case LogLevelNone:
		return "none"
	default:
		return fmt.Sprintf("invalid level %d", ll)
	}
}

// Logger is the interface used to get log output from the pool.
type Logger interface {
	// Log a message at the given level with data key/value pairs. data may be nil.
	Log(ctx context.Context, level LogLevel, msg string, data map[string]any)
}

// LoggerFunc is a wrapper around a function to satisfy the Logger interface
type LoggerFunc func(ctx context.Context, level LogLevel, msg string, data map[string]any)

// Log delegates the logging request to the wrapped function
func (f LoggerFunc) Log(ctx context.Context, level LogLevel, msg string, data map[string]any) {
	f(ctx, level, msg, data)
}

// LogLevelFromString converts log level string to constant
//
// Valid levels:
//
//	trace
//	debug
//	info
//	warn
//	error
//	none
func LogLevelFromString(s string) (LogLevel, error) {
	switch s {
	case "trace":
		return LogLevelTrace, nil
	case "debug":
		return LogLevelDebug, nil
	case "info":
		return LogLevelInfo, nil
	case "warn":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none":
		return LogLevelNone, nil
	default:
		return 0, errors.New("invalid log level")
	}
}

// Leveled pairs a Logger with the most verbose level that should reach it. The zero value discards everything.
type Leveled struct {
	Logger Logger
	Level  LogLevel
}

// Enabled reports whether a message at level would be written.
func (l Leveled) Enabled(level LogLevel) bool {
	if l.Logger == nil {
		return false
	}
	threshold := l.Level
	if threshold == 0 {
		threshold = LogLevelInfo
	}
	return level <= threshold && level > LogLevelNone
}

// Log writes msg if level is enabled.
func (l Leveled) Log(ctx context.Context, level LogLevel, msg string, data map[string]any) {
	if !l.Enabled(level) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	l.Logger.Log(ctx, level, msg, data)
}

// With returns a copy of l whose messages always carry the key/value pairs in fields.
func (l Leveled) With(fields map[string]any) Leveled {
	if l.Logger == nil || len(fields) == 0 {
		return l
	}
	inner := l.Logger
	return Leveled{
		Level: l.Level,
		Logger: LoggerFunc(func(ctx context.Context, level LogLevel, msg string, data map[string]any) {
			merged := make(map[string]any, len(fields)+len(data))
			for k, v := range fields {
				merged[k] = v
			}
			for k, v := range data {
				merged[k] = v
			}
			inner.Log(ctx, level, msg, merged)
		}),
	}
}
