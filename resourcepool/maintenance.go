package resourcepool

import (
	"context"
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

func (p *Pool[T]) post(task func(ctx context.Context)) {
	if err := p.runner.Post(task); err != nil {
		p.cfg.Logger.Log(context.Background(), tracelog.LogLevelDebug, "maintenance task not scheduled", map[string]any{"pool": p.cfg.Label, "err": err})
	}
}

func (p *Pool[T]) acquireTask(ctx context.Context) {
	select {
	case <-p.closedChan:
		p.acquireFailed(ctx, ErrClosed)
		return
	default:
	}

	var err error
	for attempt := 1; ; attempt++ {
		var res T
		res, err = p.mgr.Acquire(ctx)
		if err == nil {
			p.addAcquired(ctx, res)
			return
		}

		p.cfg.Logger.Log(ctx, tracelog.LogLevelDebug, "acquisition attempt failed", map[string]any{"pool": p.cfg.Label, "attempt": attempt, "err": err})
		if p.cfg.AcquireRetryAttempts > 0 && attempt >= p.cfg.AcquireRetryAttempts {
			break
		}
		if !p.sleep(ctx, p.cfg.AcquireRetryDelay) {
			break
		}
	}
	p.acquireFailed(ctx, err)
}

// sleep waits d and reports whether acquisition should continue.
func (p *Pool[T]) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-p.closedChan:
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *Pool[T]) addAcquired(ctx context.Context, res T) {
	p.mu.Lock()
	p.pendingAcquires--
	if p.closed || p.broken {
		p.signalLocked()
		p.mu.Unlock()
		p.destroyNow(ctx, res, false)
		return
	}
	now := time.Now()
	p.managed[res] = &resource{created: now, lastCheckin: now}
	p.idle = append(p.idle, res)
	p.acquireCount++
	p.signalLocked()
	p.mu.Unlock()
}

func (p *Pool[T]) acquireFailed(ctx context.Context, err error) {
	p.mu.Lock()
	p.pendingAcquires--
	p.acquireFailures++
	p.lastAcquireFailure = err
	closed := p.closed
	broke := p.cfg.BreakOnAcquireFailure && !closed && !p.broken
	if broke {
		p.broken = true
	}
	p.signalLocked()
	p.mu.Unlock()

	switch {
	case closed:
		return
	case broke:
		p.cfg.Logger.Log(ctx, tracelog.LogLevelError, "acquisition attempts exhausted, pool is broken", map[string]any{"pool": p.cfg.Label, "attempts": p.cfg.AcquireRetryAttempts, "err": err})
	default:
		p.cfg.Logger.Log(ctx, tracelog.LogLevelWarn, "acquisition attempts exhausted", map[string]any{"pool": p.cfg.Label, "attempts": p.cfg.AcquireRetryAttempts, "err": err})
	}
}

type condemned[T comparable] struct {
	res          T
	checkedOut   bool
	stack        []byte
	checkedOutAt time.Time
}

// cullExpired destroys resources past MaxAge, MaxIdleTime, ExcessMaxIdleTime or DestroyOverdueTime and tops the pool
// back up toward its target size.
func (p *Pool[T]) cullExpired(ctx context.Context) {
	now := time.Now()
	var doomed []condemned[T]

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	live := p.liveLocked()
	for res, rec := range p.managed {
		_, excluded := p.excluded[res]

		if rec.checkedOut {
			if p.cfg.DestroyOverdueTime > 0 && !rec.checkingIn && now.Sub(rec.lastCheckout) > p.cfg.DestroyOverdueTime {
				doomed = append(doomed, condemned[T]{res: res, checkedOut: true, stack: rec.stack, checkedOutAt: rec.lastCheckout})
				p.reclaimedCount++
				if !excluded {
					live--
				}
			}
			continue
		}
		if rec.testing || excluded {
			continue
		}

		shrink := false
		switch {
		case p.cfg.MaxAge > 0 && now.Sub(rec.created) > p.cfg.MaxAge:
		case p.cfg.MaxIdleTime > 0 && now.Sub(rec.lastCheckin) > p.cfg.MaxIdleTime:
			shrink = true
		case p.cfg.ExcessMaxIdleTime > 0 && live > p.cfg.MinSize && now.Sub(rec.lastCheckin) > p.cfg.ExcessMaxIdleTime:
			shrink = true
		default:
			continue
		}
		doomed = append(doomed, condemned[T]{res: res})
		live--
		if shrink {
			p.target = max(p.cfg.MinSize, p.target-1)
		}
	}

	for _, d := range doomed {
		p.removeLocked(d.res)
	}
	p.recheckResizeLocked()
	p.mu.Unlock()

	for _, d := range doomed {
		if d.checkedOut {
			data := map[string]any{"pool": p.cfg.Label, "checkedOutAt": d.checkedOutAt}
			if d.stack != nil {
				data["checkoutStack"] = string(d.stack)
			}
			p.cfg.Logger.Log(ctx, tracelog.LogLevelWarn, "destroying overdue checked-out resource", data)
		}
		p.destroyNow(ctx, d.res, d.checkedOut)
	}
}

// testIdle takes every idle resource out of service and tests each with RefurbishIdle on the runner.
func (p *Pool[T]) testIdle(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	candidates := p.idle
	p.idle = nil
	for _, res := range candidates {
		p.managed[res].testing = true
	}
	p.mu.Unlock()

	for _, res := range candidates {
		res := res
		if err := p.runner.Post(func(ctx context.Context) { p.testIdleResource(ctx, res) }); err != nil {
			p.testIdleResource(ctx, res)
		}
	}
}

func (p *Pool[T]) testIdleResource(ctx context.Context, res T) {
	err := p.mgr.RefurbishIdle(ctx, res)

	p.mu.Lock()
	rec, ok := p.managed[res]
	if !ok {
		p.mu.Unlock()
		return
	}
	rec.testing = false
	_, excluded := p.excluded[res]
	if err != nil {
		p.failedIdleTests++
		p.lastIdleTestFailure = err
	}
	if err != nil || excluded || p.closed {
		p.removeLocked(res)
		p.recheckResizeLocked()
		p.mu.Unlock()

		if err != nil {
			p.cfg.Logger.Log(ctx, tracelog.LogLevelDebug, "idle resource failed test", map[string]any{"pool": p.cfg.Label, "err": err})
		}
		p.destroyNow(ctx, res, false)
		return
	}
	p.idle = append(p.idle, res)
	p.signalLocked()
	p.mu.Unlock()
}

// destroyAsync destroys res on the runner. Close waits for it.
func (p *Pool[T]) destroyAsync(res T, checkedOut bool) {
	p.mu.Lock()
	p.pendingDestroys++
	p.mu.Unlock()

	done := func() {
		p.mu.Lock()
		p.pendingDestroys--
		p.signalLocked()
		p.mu.Unlock()
	}
	err := p.runner.Post(func(ctx context.Context) {
		defer done()
		p.destroyNow(ctx, res, checkedOut)
	})
	if err != nil {
		p.destroyNow(context.Background(), res, checkedOut)
		done()
	}
}

func (p *Pool[T]) destroyNow(ctx context.Context, res T, checkedOut bool) {
	err := p.mgr.Destroy(ctx, res, checkedOut)

	p.mu.Lock()
	p.destroyCount++
	p.mu.Unlock()

	if err != nil {
		p.cfg.Logger.Log(ctx, tracelog.LogLevelWarn, "failed to destroy resource", map[string]any{"pool": p.cfg.Label, "err": err})
	}
}
