// Package testingadapter writes pool logs to a test or benchmark log.
package testingadapter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

// TestingLogger is the subset of testing.TB used by Logger. If it also has a Helper method, as testing.TB does, log
// lines are attributed to the caller of the pool.
type TestingLogger interface {
	Log(args ...any)
}

// Logger writes one line per entry: the level, the message and the data sorted by key.
type Logger struct {
	l TestingLogger
}

func NewLogger(l TestingLogger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	if h, ok := l.l.(interface{ Helper() }); ok {
		h.Helper()
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(level.String())
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, data[k])
	}
	l.l.Log(b.String())
}
