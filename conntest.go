package c3p0

import (
	"context"
	"errors"
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

// TestResult is the verdict of a connection test.
type TestResult int

const (
	ConnectionOK TestResult = iota

	// ConnectionInvalid means the connection is unusable. It is destroyed or, if resurrection is enabled, retested on
	// its next checkin.
	ConnectionInvalid

	// DatabaseInvalid means every connection to the database is presumed bad. It resets the whole pool.
	DatabaseInvalid
)

func (r TestResult) String() string {
	switch r {
	case ConnectionOK:
		return "ok"
	case ConnectionInvalid:
		return "connection invalid"
	case DatabaseInvalid:
		return "database invalid"
	default:
		return "unknown"
	}
}

// ConnectionTester tests a physical connection. query is the configured test query or "" if none.
type ConnectionTester interface {
	TestConnection(ctx context.Context, conn PhysicalConn, query string) (TestResult, error)
}

// DefaultConnectionTester pings the connection when there is no query and executes the query otherwise. Failures are
// classified by the connection's ErrorClassifier.
type DefaultConnectionTester struct{}

func (DefaultConnectionTester) TestConnection(ctx context.Context, conn PhysicalConn, query string) (TestResult, error) {
	var err error
	if query == "" {
		err = conn.Ping(ctx)
	} else {
		err = conn.Exec(ctx, query)
	}
	if err == nil {
		return ConnectionOK, nil
	}
	return classifyError(err, conn, nil), err
}

func classifyError(err error, conn PhysicalConn, provider Provider) TestResult {
	if c, ok := conn.(ErrorClassifier); ok {
		return c.ClassifyError(err)
	}
	if c, ok := provider.(ErrorClassifier); ok {
		return c.ClassifyError(err)
	}
	return ConnectionInvalid
}

// testStrategy is how a sub-pool tests its connections. It is chosen once when the sub-pool is built.
type testStrategy struct {
	validity        bool
	validityTimeout time.Duration
	tester          ConnectionTester
	query           string
}

// selectTestStrategy chooses between the built-in validity check and a tester. A validity check is used when no
// tester is named and either there is no query or a validity timeout is set. Otherwise the named tester, or
// DefaultConnectionTester, runs the query.
func selectTestStrategy(ctx context.Context, cfg *PoolConfig, query string, registry *Registry, logger tracelog.Leveled) (testStrategy, error) {
	if cfg.ConnectionTesterName == "" {
		switch {
		case query == "":
			return testStrategy{validity: true, validityTimeout: cfg.ConnectionIsValidTimeout}, nil
		case cfg.ConnectionIsValidTimeout != 0:
			logger.Log(ctx, tracelog.LogLevelWarn, "connectionIsValidTimeout is set, test query will be ignored", map[string]any{"query": query, "connectionIsValidTimeout": cfg.ConnectionIsValidTimeout.String()})
			return testStrategy{validity: true, validityTimeout: cfg.ConnectionIsValidTimeout}, nil
		default:
			logger.Log(ctx, tracelog.LogLevelWarn, "test query configured without a connection tester, using the default tester", map[string]any{"query": query})
			return testStrategy{tester: DefaultConnectionTester{}, query: query}, nil
		}
	}

	tester, ok := registry.ConnectionTester(cfg.ConnectionTesterName)
	if !ok {
		return testStrategy{}, &ConfigurationError{Property: "connectionTesterName", Msg: "no connection tester registered as " + cfg.ConnectionTesterName}
	}
	if cfg.ConnectionIsValidTimeout != 0 {
		logger.Log(ctx, tracelog.LogLevelWarn, "connectionIsValidTimeout is not supported with a connection tester and will be ignored", map[string]any{"tester": cfg.ConnectionTesterName})
	}
	return testStrategy{tester: tester, query: query}, nil
}

func (s *testStrategy) test(ctx context.Context, conn PhysicalConn, provider Provider) (TestResult, error) {
	if !s.validity {
		return s.tester.TestConnection(ctx, conn, s.query)
	}

	if s.validityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.validityTimeout)
		defer cancel()
	}
	err := conn.Ping(ctx)
	if err == nil {
		return ConnectionOK, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ConnectionInvalid, err
	}
	return classifyError(err, conn, provider), err
}
