package kitlogadapter_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/oss-evaluation-repository/swaldman-c3p0/log/kitlogadapter"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := kitlogadapter.NewLogger(log.NewLogfmtLogger(&buf))

	logger.Log(context.Background(), tracelog.LogLevelWarn, "checkout timed out", map[string]any{"waiters": 2})

	assert.Equal(t, "level=warn waiters=2 msg=\"checkout timed out\"\n", buf.String())
}
