package testingadapter_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/oss-evaluation-repository/swaldman-c3p0/log/testingadapter"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	lines   []string
	helpers int
}

func (r *recorder) Log(args ...any) { r.lines = append(r.lines, fmt.Sprint(args...)) }
func (r *recorder) Helper()         { r.helpers++ }

func TestLogger(t *testing.T) {
	r := &recorder{}
	logger := testingadapter.NewLogger(r)

	logger.Log(context.Background(), tracelog.LogLevelWarn, "pool reset", map[string]any{"user": "al***", "destroyed": 3})
	logger.Log(context.Background(), tracelog.LogLevelDebug, "tick", nil)

	require.Len(t, r.lines, 2)
	assert.Equal(t, "warn pool reset destroyed=3 user=al***", r.lines[0])
	assert.Equal(t, "debug tick", r.lines[1])
	assert.Equal(t, 2, r.helpers)
}

func TestLoggerWritesToTestLog(t *testing.T) {
	var logger tracelog.Logger = testingadapter.NewLogger(t)
	logger.Log(context.Background(), tracelog.LogLevelInfo, "pool created", map[string]any{"minPoolSize": 1})
}
