package c3p0

import (
	"context"
	"errors"
	"sync"

	"github.com/oss-evaluation-repository/swaldman-c3p0/stmtcache"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

// pooledConn is the pooled resource wrapping a physical connection.
type pooledConn struct {
	physical PhysicalConn

	// mu serializes tests, customizer calls and session marking on the connection.
	mu sync.Mutex

	// marked is true while the connection is marked in use in the statement cache on behalf of a client.
	marked bool
}

// lifecycle implements resourcepool.Manager for a Pool.
type lifecycle Pool

func (l *lifecycle) pool() *Pool { return (*Pool)(l) }

func (l *lifecycle) Acquire(ctx context.Context) (*pooledConn, error) {
	p := l.pool()
	conn, err := p.provider.Connect(ctx, p.cred)
	if err != nil {
		return nil, err
	}

	if p.customizer != nil {
		if err := p.customizer.OnAcquire(ctx, conn, p.id); err != nil {
			p.logger.Log(ctx, tracelog.LogLevelWarn, "connection customizer rejected new connection", map[string]any{"err": err})
			if closeErr := conn.Close(ctx); closeErr != nil {
				p.logger.Log(ctx, tracelog.LogLevelDebug, "failed to close rejected connection", map[string]any{"err": closeErr})
			}
			return nil, err
		}
	}

	p.logWarnings(ctx, conn)
	p.session.negotiate(ctx, p, conn)
	return &pooledConn{physical: conn}, nil
}

func (l *lifecycle) RefurbishOnCheckout(ctx context.Context, pc *pooledConn) (err error) {
	p := l.pool()
	defer p.resetIfDatabaseInvalid(ctx, &err)
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if p.customizer != nil {
		if err := runCustomizerHook(ctx, p.logger, "OnCheckOut", p.customizer.OnCheckOut(ctx, pc.physical, p.id)); err != nil {
			return err
		}
	}
	if p.cfg.TestConnectionOnCheckout {
		if err := p.testLocked(ctx, pc); err != nil {
			return err
		}
	}
	return p.session.begin(ctx, pc.physical)
}

func (l *lifecycle) RefurbishOnCheckin(ctx context.Context, pc *pooledConn) (err error) {
	p := l.pool()
	defer p.resetIfDatabaseInvalid(ctx, &err)
	pc.mu.Lock()
	defer pc.mu.Unlock()
	defer func() {
		if pc.marked {
			p.scache.UnmarkConnectionInUse(pc)
			pc.marked = false
		}
	}()

	p.logWarnings(ctx, pc.physical)
	p.closeInvalidatedLocked(ctx, pc)
	if err := p.session.end(ctx, pc.physical); err != nil {
		return err
	}
	if p.customizer != nil {
		if err := runCustomizerHook(ctx, p.logger, "OnCheckIn", p.customizer.OnCheckIn(ctx, pc.physical, p.id)); err != nil {
			return err
		}
	}

	resurrect := p.takeResurrectable(pc)
	if !p.cfg.TestConnectionOnCheckin && !resurrect {
		return nil
	}
	if err := p.testLocked(ctx, pc); err != nil {
		if resurrect {
			p.logger.Log(ctx, tracelog.LogLevelDebug, "invalidated connection could not be resurrected", map[string]any{"err": err})
		}
		return err
	}
	if resurrect {
		p.logger.Log(ctx, tracelog.LogLevelInfo, "invalidated connection passed its test and was resurrected", nil)
	}
	return nil
}

func (l *lifecycle) RefurbishIdle(ctx context.Context, pc *pooledConn) (err error) {
	p := l.pool()
	defer p.resetIfDatabaseInvalid(ctx, &err)
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if p.scache != nil {
		if err := p.scache.WaitMarkConnectionInUse(ctx, pc); err != nil {
			return err
		}
		defer p.scache.UnmarkConnectionInUse(pc)
		p.closeInvalidatedLocked(ctx, pc)
	}
	return p.testLocked(ctx, pc)
}

func (l *lifecycle) Destroy(ctx context.Context, pc *pooledConn, checkedOut bool) error {
	p := l.pool()
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if checkedOut {
		p.logger.Log(ctx, tracelog.LogLevelDebug, "destroying connection that is still checked out", nil)
	}
	if p.customizer != nil {
		if err := runCustomizerHook(ctx, p.logger, "OnDestroy", p.customizer.OnDestroy(ctx, pc.physical, p.id)); err != nil {
			p.logger.Log(ctx, tracelog.LogLevelWarn, "connection customizer cannot handle destroyed connection", map[string]any{"err": err})
		}
	}
	if p.scache != nil {
		if err := p.scache.CloseAll(ctx, pc); err != nil {
			p.logger.Log(ctx, tracelog.LogLevelDebug, "failed to close cached statements", map[string]any{"err": err})
		}
		pc.marked = false
	}
	p.forgetResurrectable(pc)
	return pc.physical.Close(ctx)
}

// testLocked tests pc, which must be locked. A failure is recorded and returned as a *ValidationError.
func (p *Pool) testLocked(ctx context.Context, pc *pooledConn) error {
	result, err := p.strategy.test(ctx, pc.physical, p.provider)
	if result == ConnectionOK {
		return nil
	}

	verr := &ValidationError{Result: result, Err: err}
	p.mu.Lock()
	p.lastTestFailure = verr
	p.mu.Unlock()
	return verr
}

// resetIfDatabaseInvalid resets the pool when *errp reports the database invalid. It must be called without the
// connection lock held.
func (p *Pool) resetIfDatabaseInvalid(ctx context.Context, errp *error) {
	var verr *ValidationError
	if errors.As(*errp, &verr) && verr.Result == DatabaseInvalid {
		p.logger.Log(ctx, tracelog.LogLevelWarn, "connection test reports the database invalid, resetting pool", map[string]any{"err": verr.Err})
		p.Reset()
	}
}

// closeInvalidatedLocked closes statements evicted from pc's cache entries. pc must be locked and not lent out.
func (p *Pool) closeInvalidatedLocked(ctx context.Context, pc *pooledConn) {
	if p.scache == nil {
		return
	}
	if err := p.scache.CloseInvalidated(ctx, pc); err != nil {
		p.logger.Log(ctx, tracelog.LogLevelDebug, "failed to close evicted statements", map[string]any{"err": err})
	}
}

func (p *Pool) logWarnings(ctx context.Context, conn PhysicalConn) {
	w, ok := conn.(WarningReporter)
	if !ok {
		return
	}
	for _, warning := range w.TakeWarnings() {
		p.logger.Log(ctx, tracelog.LogLevelWarn, "database warning", map[string]any{"warning": warning})
	}
}

func (p *Pool) prepareStatement(ctx context.Context, pc *pooledConn, sql string) (stmtcache.Statement, error) {
	preparer, ok := pc.physical.(StatementPreparer)
	if !ok {
		return nil, ErrPrepareUnsupported
	}
	return preparer.Prepare(ctx, sql)
}

func (p *Pool) markResurrectable(pc *pooledConn) {
	p.mu.Lock()
	p.resurrectable[pc] = struct{}{}
	p.mu.Unlock()
}

func (p *Pool) takeResurrectable(pc *pooledConn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.resurrectable[pc]
	delete(p.resurrectable, pc)
	return ok
}

func (p *Pool) forgetResurrectable(pc *pooledConn) {
	p.mu.Lock()
	delete(p.resurrectable, pc)
	p.mu.Unlock()
}
