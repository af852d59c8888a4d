package c3p0_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0"
	"github.com/oss-evaluation-repository/swaldman-c3p0/log/testingadapter"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeProvider struct {
	mu             sync.Mutex
	conns          []*fakeConn
	users          map[string]string
	connectErr     error
	execErr        error
	badConns       map[int]bool
	tables         map[string]int
	execLog        []string
	classification c3p0.TestResult
	props          map[string]string
	connectCount   int
	gates          map[string]chan struct{}
	gated          atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		badConns:       make(map[int]bool),
		tables:         make(map[string]int),
		classification: c3p0.ConnectionInvalid,
	}
}

func (p *fakeProvider) Connect(ctx context.Context, cred c3p0.Credential) (c3p0.PhysicalConn, error) {
	p.mu.Lock()
	gate := p.gates[cred.User]
	p.mu.Unlock()
	if gate != nil {
		p.gated.Add(1)
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.connectCount++
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	if p.users != nil && !cred.IsNull() {
		if password, ok := p.users[cred.User]; !ok || password != cred.Password {
			return nil, errors.New("authentication failed")
		}
	}
	conn := &fakeConn{id: len(p.conns) + 1, cred: cred, provider: p}
	p.conns = append(p.conns, conn)
	return conn, nil
}

func (p *fakeProvider) ClassifyError(err error) c3p0.TestResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.classification
}

func (p *fakeProvider) PoolProperty(name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.props[name]
	return v, ok
}

func (p *fakeProvider) setConnectErr(err error) {
	p.mu.Lock()
	p.connectErr = err
	p.mu.Unlock()
}

func (p *fakeProvider) setExecErr(err error) {
	p.mu.Lock()
	p.execErr = err
	p.mu.Unlock()
}

// gate blocks connections for user until the returned channel is closed.
func (p *fakeProvider) gate(user string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gates == nil {
		p.gates = make(map[string]chan struct{})
	}
	ch := make(chan struct{})
	p.gates[user] = ch
	return ch
}

func (p *fakeProvider) setBad(id int) {
	p.mu.Lock()
	p.badConns[id] = true
	p.mu.Unlock()
}

func (p *fakeProvider) conn(id int) *fakeConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[id-1]
}

func (p *fakeProvider) numConns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

func (p *fakeProvider) executed(sql string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.execLog {
		if s == sql {
			return true
		}
	}
	return false
}

type fakeConn struct {
	id       int
	cred     c3p0.Credential
	provider *fakeProvider
	closed   atomic.Bool
	pings    atomic.Int32
	begins   atomic.Int32
	ends     atomic.Int32
	busy     atomic.Int32
	warnings []string
}

func (c *fakeConn) Ping(ctx context.Context) error {
	c.pings.Add(1)
	c.provider.mu.Lock()
	defer c.provider.mu.Unlock()
	if c.provider.badConns[c.id] {
		return errBoom
	}
	return nil
}

func (c *fakeConn) Exec(ctx context.Context, sql string) error {
	c.busy.Add(1)
	defer c.busy.Add(-1)

	c.provider.mu.Lock()
	defer c.provider.mu.Unlock()

	c.provider.execLog = append(c.provider.execLog, sql)
	if c.provider.badConns[c.id] {
		return errBoom
	}
	if c.provider.execErr != nil {
		return c.provider.execErr
	}
	if table, ok := strings.CutPrefix(sql, "CREATE TABLE "); ok {
		c.provider.tables[strings.Trim(strings.Fields(table)[0], `"`)] = 0
	}
	return nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) Prepare(ctx context.Context, sql string) (c3p0.PreparedStatement, error) {
	return &fakeStmt{sql: sql, conn: c}, nil
}

func (c *fakeConn) BeginRequest(ctx context.Context) error {
	c.begins.Add(1)
	return nil
}

func (c *fakeConn) EndRequest(ctx context.Context) error {
	c.ends.Add(1)
	return nil
}

func (c *fakeConn) TableExists(ctx context.Context, table string) (bool, error) {
	c.provider.mu.Lock()
	defer c.provider.mu.Unlock()
	_, ok := c.provider.tables[table]
	return ok, nil
}

func (c *fakeConn) QueryHasRows(ctx context.Context, sql string) (bool, error) {
	c.provider.mu.Lock()
	defer c.provider.mu.Unlock()
	for table, rows := range c.provider.tables {
		if strings.HasSuffix(sql, `"`+table+`"`) {
			return rows > 0, nil
		}
	}
	return false, nil
}

func (c *fakeConn) QuoteIdentifier(name string) string {
	return `"` + name + `"`
}

type fakeStmt struct {
	sql        string
	conn       *fakeConn
	closed     atomic.Bool
	overlapped atomic.Bool
}

// Close fails like a real driver when the connection is busy on another goroutine.
func (s *fakeStmt) Close(ctx context.Context) error {
	if s.conn != nil && s.conn.busy.Load() > 0 {
		s.overlapped.Store(true)
		return errors.New("conn busy")
	}
	s.closed.Store(true)
	return nil
}

// testConfig returns a config for a small pool that checks in synchronously and gives up on acquisition quickly.
func testConfig(provider c3p0.Provider) *c3p0.Config {
	config := c3p0.DefaultConfig(provider)
	config.Pool.MinPoolSize = 1
	config.Pool.MaxPoolSize = 3
	config.Pool.InitialPoolSize = 1
	config.Pool.AcquireIncrement = 1
	config.Pool.AcquireRetryAttempts = 2
	config.Pool.AcquireRetryDelay = time.Millisecond
	config.Pool.ForceSynchronousCheckins = true
	return config
}

func newManager(t testing.TB, config *c3p0.Config) *c3p0.Manager {
	t.Helper()
	if config.Logger == nil {
		config.Logger = testingadapter.NewLogger(t)
		config.LogLevel = tracelog.LogLevelWarn
	}
	m, err := c3p0.NewManager(config)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close(false) })
	return m
}

func waitForIdle(t testing.TB, p *c3p0.Pool, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Stat().NumIdleConnections >= n }, 2*time.Second, time.Millisecond)
}

func waitForNoPendingAcquires(t testing.TB, p *c3p0.Pool) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Stat().NumPendingAcquires == 0 }, 2*time.Second, time.Millisecond)
}
