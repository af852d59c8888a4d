// Package stmtcache is a bounded cache of prepared statements shared by the connections of a pool.
//
// The cache is bounded globally, per connection, or both. A statement is never closed while another goroutine may be
// using its connection. Without a deferred-close runner evicted statements are invalidated and closed later by the
// connection's owner through CloseInvalidated or CloseAll. With one, they are closed in the background while their
// connection is not in use by a client, and connections are marked in use around checkout to coordinate with those
// closes.
package stmtcache

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/oss-evaluation-repository/swaldman-c3p0/taskrunner"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

var (
	ErrClosed           = errors.New("stmtcache: closed")
	ErrUnknownStatement = errors.New("stmtcache: statement was not checked out from this cache")
)

// Statement is a prepared statement. Implementations must be comparable, typically a pointer.
type Statement interface {
	Close(ctx context.Context) error
}

// PrepareFunc prepares sql on conn.
type PrepareFunc[C comparable] func(ctx context.Context, conn C, sql string) (Statement, error)

type Mode int

const (
	ModeGlobal Mode = iota
	ModePerConnection
	ModeGlobalAndPerConnection
)

func (m Mode) String() string {
	switch m {
	case ModeGlobal:
		return "global"
	case ModePerConnection:
		return "per-connection"
	case ModeGlobalAndPerConnection:
		return "global-and-per-connection"
	default:
		return "invalid"
	}
}

type Config struct {
	// MaxStatements bounds the statements cached across all connections. 0 means unbounded by this limit.
	MaxStatements int

	// MaxStatementsPerConnection bounds the statements cached for one connection. 0 means unbounded by this limit.
	MaxStatementsPerConnection int

	// DeferredCloseRunner, if set, closes evicted statements in the background while their connection is not in use.
	// If nil evicted statements wait for CloseInvalidated.
	DeferredCloseRunner taskrunner.Runner

	Logger tracelog.Leveled
}

// Enabled reports whether config describes a cache at all.
func (config Config) Enabled() bool {
	return config.MaxStatements > 0 || config.MaxStatementsPerConnection > 0
}

type key[C comparable] struct {
	conn C
	sql  string
}

type entry[C comparable] struct {
	key        key[C]
	stmt       Statement
	checkedOut bool
	globalEl   *list.Element
	connEl     *list.Element
}

type markOwner int

const (
	markedByClient markOwner = iota + 1
	markedByDestroyer
)

// Cache is a statement cache over connections identified by C.
type Cache[C comparable] struct {
	config  Config
	mode    Mode
	prepare PrepareFunc[C]

	mu       sync.Mutex
	notify   chan struct{}
	closed   bool
	global   *list.List
	byKey    map[key[C]][]*entry[C]
	byConn   map[C]*list.List
	byStmt   map[Statement]*entry[C]
	uncached map[Statement]C

	inUse       map[C]markOwner
	deferred    map[C]int
	invalidated map[C][]Statement
}

// New returns a cache preparing statements with prepare. config must be Enabled.
func New[C comparable](prepare PrepareFunc[C], config Config) (*Cache[C], error) {
	if !config.Enabled() {
		return nil, errors.New("stmtcache: MaxStatements or MaxStatementsPerConnection must be positive")
	}
	if config.MaxStatements < 0 || config.MaxStatementsPerConnection < 0 {
		return nil, errors.New("stmtcache: negative statement limit")
	}

	mode := ModeGlobalAndPerConnection
	switch {
	case config.MaxStatementsPerConnection == 0:
		mode = ModeGlobal
	case config.MaxStatements == 0:
		mode = ModePerConnection
	}

	return &Cache[C]{
		config:      config,
		mode:        mode,
		prepare:     prepare,
		notify:      make(chan struct{}),
		global:      list.New(),
		byKey:       make(map[key[C]][]*entry[C]),
		byConn:      make(map[C]*list.List),
		byStmt:      make(map[Statement]*entry[C]),
		uncached:    make(map[Statement]C),
		inUse:       make(map[C]markOwner),
		deferred:    make(map[C]int),
		invalidated: make(map[C][]Statement),
	}, nil
}

func (c *Cache[C]) Mode() Mode {
	return c.mode
}

// Cautious reports whether statement closes are coordinated with connection use.
func (c *Cache[C]) Cautious() bool {
	return c.config.DeferredCloseRunner != nil
}

// CheckoutStatement returns a statement for sql on conn, reusing an idle cached statement when one exists. If the
// cache is full and nothing can be evicted the statement is returned uncached and closed on checkin.
func (c *Cache[C]) CheckoutStatement(ctx context.Context, conn C, sql string) (Statement, error) {
	k := key[C]{conn: conn, sql: sql}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	for _, e := range c.byKey[k] {
		if !e.checkedOut {
			e.checkedOut = true
			c.touchLocked(e)
			c.mu.Unlock()
			return e.stmt, nil
		}
	}
	c.mu.Unlock()

	stmt, err := c.prepare(ctx, conn, sql)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.closeNow(ctx, stmt)
		return nil, ErrClosed
	}

	var evicted []*entry[C]
	fits := true
	if c.config.MaxStatementsPerConnection > 0 {
		if l := c.byConn[conn]; l != nil && l.Len() >= c.config.MaxStatementsPerConnection {
			if victim := oldestIdle[C](l); victim != nil {
				c.removeLocked(victim)
				evicted = append(evicted, victim)
			} else {
				fits = false
			}
		}
	}
	if fits && c.config.MaxStatements > 0 && c.global.Len() >= c.config.MaxStatements {
		if victim := oldestIdle[C](c.global); victim != nil {
			c.removeLocked(victim)
			evicted = append(evicted, victim)
		} else {
			fits = false
		}
	}

	if fits {
		e := &entry[C]{key: k, stmt: stmt, checkedOut: true}
		e.globalEl = c.global.PushFront(e)
		l := c.byConn[conn]
		if l == nil {
			l = list.New()
			c.byConn[conn] = l
		}
		e.connEl = l.PushFront(e)
		c.byKey[k] = append(c.byKey[k], e)
		c.byStmt[stmt] = e
	} else {
		c.uncached[stmt] = conn
	}
	c.mu.Unlock()

	for _, e := range evicted {
		c.closeDeferred(e.key.conn, e.stmt)
	}
	return stmt, nil
}

// CheckinStatement returns stmt to the cache. An uncached statement is closed like an evicted one.
func (c *Cache[C]) CheckinStatement(stmt Statement) error {
	c.mu.Lock()
	if e, ok := c.byStmt[stmt]; ok {
		e.checkedOut = false
		c.mu.Unlock()
		return nil
	}
	conn, ok := c.uncached[stmt]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownStatement
	}
	delete(c.uncached, stmt)
	c.mu.Unlock()

	c.closeDeferred(conn, stmt)
	return nil
}

// WaitMarkConnectionInUse blocks until conn is not in use and marks it in use. Without a deferred-close runner it
// marks nothing and returns immediately.
func (c *Cache[C]) WaitMarkConnectionInUse(ctx context.Context, conn C) error {
	return c.waitMark(ctx, conn, markedByClient)
}

func (c *Cache[C]) waitMark(ctx context.Context, conn C, owner markOwner) error {
	if !c.Cautious() {
		return nil
	}
	c.mu.Lock()
	for c.inUse[conn] != 0 {
		notify := c.notify
		c.mu.Unlock()
		select {
		case <-notify:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	c.inUse[conn] = owner
	c.mu.Unlock()
	return nil
}

// TryMarkConnectionInUse marks conn in use and returns true unless it is already in use or has statement closes
// pending. Without a deferred-close runner it always returns true.
func (c *Cache[C]) TryMarkConnectionInUse(conn C) bool {
	if !c.Cautious() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inUse[conn] != 0 || c.deferred[conn] > 0 {
		return false
	}
	c.inUse[conn] = markedByClient
	return true
}

func (c *Cache[C]) UnmarkConnectionInUse(conn C) {
	if !c.Cautious() {
		return
	}
	c.mu.Lock()
	delete(c.inUse, conn)
	c.signalLocked()
	c.mu.Unlock()
}

// InUse reports whether conn is marked in use by a client or a statement close.
func (c *Cache[C]) InUse(conn C) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inUse[conn] != 0
}

// CloseInvalidated closes the statements evicted from conn since the last call. The caller must own conn, so that
// nothing else uses it meanwhile.
func (c *Cache[C]) CloseInvalidated(ctx context.Context, conn C) error {
	c.mu.Lock()
	stmts := c.invalidated[conn]
	delete(c.invalidated, conn)
	c.mu.Unlock()

	return closeStatements(ctx, stmts)
}

// CloseAll closes every statement cached or invalidated for conn once pending deferred closes on conn have drained.
// It must be called before conn itself is closed.
func (c *Cache[C]) CloseAll(ctx context.Context, conn C) error {
	c.mu.Lock()
	if c.inUse[conn] == markedByClient {
		delete(c.inUse, conn)
		c.signalLocked()
	}
	for c.deferred[conn] > 0 {
		notify := c.notify
		c.mu.Unlock()
		select {
		case <-notify:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}

	var stmts []Statement
	if l := c.byConn[conn]; l != nil {
		for el := l.Front(); el != nil; {
			next := el.Next()
			e := el.Value.(*entry[C])
			c.removeLocked(e)
			stmts = append(stmts, e.stmt)
			el = next
		}
	}
	for stmt, owner := range c.uncached {
		if owner == conn {
			delete(c.uncached, stmt)
			stmts = append(stmts, stmt)
		}
	}
	stmts = append(stmts, c.invalidated[conn]...)
	delete(c.invalidated, conn)
	delete(c.inUse, conn)
	c.mu.Unlock()

	return closeStatements(ctx, stmts)
}

func closeStatements(ctx context.Context, stmts []Statement) error {
	var firstErr error
	for _, stmt := range stmts {
		if err := stmt.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every cached statement and rejects further checkouts.
func (c *Cache[C]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conns := make([]C, 0, len(c.byConn))
	for conn := range c.byConn {
		conns = append(conns, conn)
	}
	seen := make(map[C]struct{}, len(conns))
	for _, conn := range conns {
		seen[conn] = struct{}{}
	}
	for _, conn := range c.uncached {
		if _, ok := seen[conn]; !ok {
			seen[conn] = struct{}{}
			conns = append(conns, conn)
		}
	}
	for conn := range c.invalidated {
		if _, ok := seen[conn]; !ok {
			seen[conn] = struct{}{}
			conns = append(conns, conn)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, conn := range conns {
		if err := c.CloseAll(ctx, conn); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Cache[C]) closeDeferred(conn C, stmt Statement) {
	if !c.Cautious() {
		c.mu.Lock()
		c.invalidated[conn] = append(c.invalidated[conn], stmt)
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.deferred[conn]++
	c.mu.Unlock()

	err := c.config.DeferredCloseRunner.Post(func(ctx context.Context) {
		if err := c.waitMark(ctx, conn, markedByDestroyer); err != nil {
			c.finishDeferred(conn, false)
			c.config.Logger.Log(ctx, tracelog.LogLevelWarn, "gave up waiting to close statement", map[string]any{"err": err})
			return
		}
		c.closeNow(ctx, stmt)
		c.finishDeferred(conn, true)
	})
	if err != nil {
		c.closeNow(context.Background(), stmt)
		c.finishDeferred(conn, false)
	}
}

func (c *Cache[C]) finishDeferred(conn C, marked bool) {
	c.mu.Lock()
	if marked && c.inUse[conn] == markedByDestroyer {
		delete(c.inUse, conn)
	}
	if c.deferred[conn]--; c.deferred[conn] <= 0 {
		delete(c.deferred, conn)
	}
	c.signalLocked()
	c.mu.Unlock()
}

func (c *Cache[C]) closeNow(ctx context.Context, stmt Statement) {
	if err := stmt.Close(ctx); err != nil {
		c.config.Logger.Log(ctx, tracelog.LogLevelDebug, "failed to close statement", map[string]any{"err": err})
	}
}

func (c *Cache[C]) touchLocked(e *entry[C]) {
	c.global.MoveToFront(e.globalEl)
	c.byConn[e.key.conn].MoveToFront(e.connEl)
}

func (c *Cache[C]) removeLocked(e *entry[C]) {
	c.global.Remove(e.globalEl)
	if l := c.byConn[e.key.conn]; l != nil {
		l.Remove(e.connEl)
		if l.Len() == 0 {
			delete(c.byConn, e.key.conn)
		}
	}
	entries := c.byKey[e.key]
	for i, other := range entries {
		if other == e {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(c.byKey, e.key)
	} else {
		c.byKey[e.key] = entries
	}
	delete(c.byStmt, e.stmt)
}

func (c *Cache[C]) signalLocked() {
	close(c.notify)
	c.notify = make(chan struct{})
}

// oldestIdle returns the least recently used entry of l that is not checked out.
func oldestIdle[C comparable](l *list.List) *entry[C] {
	for el := l.Back(); el != nil; el = el.Prev() {
		if e := el.Value.(*entry[C]); !e.checkedOut {
			return e
		}
	}
	return nil
}
