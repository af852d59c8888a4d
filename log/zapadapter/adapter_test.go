package zapadapter_test

import (
	"context"
	"testing"

	"github.com/oss-evaluation-repository/swaldman-c3p0/log/zapadapter"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zapadapter.NewLogger(zap.New(core))

	logger.Log(context.Background(), tracelog.LogLevelWarn, "pool broken", map[string]any{"pool": "p1"})
	logger.Log(context.Background(), tracelog.LogLevelTrace, "tick", nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "pool broken", entries[0].Message)
	assert.Equal(t, "p1", entries[0].ContextMap()["pool"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, "trace", entries[1].ContextMap()["C3P0_LOG_LEVEL"])
}
