package zerologadapter_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/oss-evaluation-repository/swaldman-c3p0/log/zerologadapter"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
	"github.com/rs/zerolog"
)

func TestLogger(t *testing.T) {

	t.Run("default", func(t *testing.T) {
		var buf bytes.Buffer
		zlogger := zerolog.New(&buf)
		logger := zerologadapter.NewLogger(zlogger)
		logger.Log(context.Background(), tracelog.LogLevelInfo, "hello", map[string]any{"one": "two"})
		const want = `{"level":"info","module":"c3p0","one":"two","message":"hello"}
`
		got := buf.String()
		if got != want {
			t.Errorf("%s != %s", got, want)
		}
	})

	t.Run("disable c3p0 module", func(t *testing.T) {
		var buf bytes.Buffer
		zlogger := zerolog.New(&buf)
		logger := zerologadapter.NewLogger(zlogger, zerologadapter.WithoutC3P0Module())
		logger.Log(context.Background(), tracelog.LogLevelInfo, "hello", nil)
		const want = `{"level":"info","message":"hello"}
`
		got := buf.String()
		if got != want {
			t.Errorf("%s != %s", got, want)
		}
	})

	t.Run("from context", func(t *testing.T) {
		var buf bytes.Buffer
		zlogger := zerolog.New(&buf)
		ctx := zlogger.WithContext(context.Background())
		logger := zerologadapter.NewContextLogger()
		logger.Log(ctx, tracelog.LogLevelInfo, "hello", map[string]any{"one": "two"})
		const want = `{"level":"info","module":"c3p0","one":"two","message":"hello"}
`

		got := buf.String()
		if got != want {
			t.Log(got)
			t.Log(want)
			t.Errorf("%s != %s", got, want)
		}
	})

	var buf bytes.Buffer
	type key string
	var ck key
	zlogger := zerolog.New(&buf)
	logger := zerologadapter.NewLogger(zlogger,
		zerologadapter.WithContextFunc(func(ctx context.Context, logWith zerolog.Context) zerolog.Context {
			id, ok := ctx.Value(ck).(string)
			if ok {
				logWith = logWith.Str("req_id", id)
			}
			return logWith
		}),
	)

	t.Run("no request id", func(t *testing.T) {
		buf.Reset()
		ctx := context.Background()
		logger.Log(ctx, tracelog.LogLevelInfo, "hello", nil)
		const want = `{"level":"info","module":"c3p0","message":"hello"}
`
		got := buf.String()
		if got != want {
			t.Errorf("%s != %s", got, want)
		}
	})

	t.Run("with request id", func(t *testing.T) {
		buf.Reset()
		ctx := context.WithValue(context.Background(), ck, "1")
		logger.Log(ctx, tracelog.LogLevelInfo, "hello", map[string]any{"two": "2"})
		const want = `{"level":"info","module":"c3p0","req_id":"1","two":"2","message":"hello"}
`
		got := buf.String()
		if got != want {
			t.Errorf("%s != %s", got, want)
		}
	})
}
