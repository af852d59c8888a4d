package c3p0

import (
	"context"
	"sync"

	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

// Conn is a checked-out connection. It is not safe for concurrent use. Close returns it to its Pool.
type Conn struct {
	pool *Pool
	pc   *pooledConn

	mu     sync.Mutex
	closed bool
	stmts  map[*Stmt]struct{}
}

// Exec executes sql. An error is classified and may invalidate the connection or the whole pool.
func (c *Conn) Exec(ctx context.Context, sql string) error {
	if c.IsClosed() {
		return ErrClosed
	}
	err := c.pc.physical.Exec(ctx, sql)
	if err != nil {
		c.pool.handleConnError(ctx, c.pc, err)
	}
	return err
}

// Ping verifies the connection is alive.
func (c *Conn) Ping(ctx context.Context) error {
	if c.IsClosed() {
		return ErrClosed
	}
	err := c.pc.physical.Ping(ctx)
	if err != nil {
		c.pool.handleConnError(ctx, c.pc, err)
	}
	return err
}

// Prepare prepares sql, taking it from the statement cache when one is configured. The statement must be closed
// before the connection is returned. Statements still open are closed by Conn.Close.
func (c *Conn) Prepare(ctx context.Context, sql string) (*Stmt, error) {
	if c.IsClosed() {
		return nil, ErrClosed
	}

	var (
		raw PreparedStatement
		err error
	)
	cached := c.pool.scache != nil
	if cached {
		// The client owns the connection, so statements evicted from it can be closed here.
		if err := c.pool.scache.CloseInvalidated(ctx, c.pc); err != nil {
			c.pool.logger.Log(ctx, tracelog.LogLevelDebug, "failed to close evicted statements", map[string]any{"err": err})
		}
		raw, err = c.pool.scache.CheckoutStatement(ctx, c.pc, sql)
	} else if preparer, ok := c.pc.physical.(StatementPreparer); ok {
		raw, err = preparer.Prepare(ctx, sql)
	} else {
		return nil, ErrPrepareUnsupported
	}
	if err != nil {
		if err != ErrPrepareUnsupported {
			c.pool.handleConnError(ctx, c.pc, err)
		}
		return nil, err
	}

	stmt := &Stmt{conn: c, raw: raw, sql: sql, cached: cached}
	c.mu.Lock()
	if c.stmts == nil {
		c.stmts = make(map[*Stmt]struct{})
	}
	c.stmts[stmt] = struct{}{}
	c.mu.Unlock()
	return stmt, nil
}

// Physical returns the underlying connection. It must not be closed or used after c is closed.
func (c *Conn) Physical() PhysicalConn {
	return c.pc.physical
}

// Invalidate reports a verdict reached by the caller. ConnectionInvalid discards the connection when it is returned,
// or retests it then if AttemptResurrectOnCheckin is set. DatabaseInvalid resets the pool.
func (c *Conn) Invalidate(ctx context.Context, result TestResult) {
	c.pool.invalidate(ctx, c.pc, result, nil)
}

// IsClosed reports whether c has been returned to its pool.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes any statements left open and returns the connection to its pool. Closing a closed Conn is a no-op.
// It returns a *ResourceStateError if the pool no longer manages the connection, for example because it was reclaimed
// after UnreturnedConnectionTimeout.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stmts := c.stmts
	c.stmts = nil
	c.mu.Unlock()

	for stmt := range stmts {
		if err := stmt.release(ctx); err != nil {
			c.pool.logger.Log(ctx, tracelog.LogLevelDebug, "failed to close statement left open", map[string]any{"sql": stmt.sql, "err": err})
		}
	}
	return c.pool.checkin(ctx, c.pc)
}

// Stmt is a prepared statement on a Conn.
type Stmt struct {
	conn   *Conn
	raw    PreparedStatement
	sql    string
	cached bool
	once   sync.Once
	err    error
}

// SQL returns the statement text.
func (s *Stmt) SQL() string { return s.sql }

// Raw returns the statement prepared by the physical connection. It must not be closed directly.
func (s *Stmt) Raw() PreparedStatement { return s.raw }

// Close releases the statement. A cached statement is returned to the cache instead of being closed.
func (s *Stmt) Close(ctx context.Context) error {
	s.conn.mu.Lock()
	delete(s.conn.stmts, s)
	s.conn.mu.Unlock()
	return s.release(ctx)
}

func (s *Stmt) release(ctx context.Context) error {
	s.once.Do(func() {
		if s.cached {
			s.err = s.conn.pool.scache.CheckinStatement(s.raw)
		} else {
			s.err = s.raw.Close(ctx)
		}
	})
	return s.err
}
