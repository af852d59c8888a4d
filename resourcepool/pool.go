// Package resourcepool is a generic bounded resource pool with background maintenance.
//
// A Pool grows by IncrementSize toward MaxSize as checkout demand requires, acquiring resources asynchronously with
// retries. A recurring sweep destroys resources that are too old, idle too long, or checked out too long, and tops the
// pool back up toward its target size. All resource-specific behavior is delegated to a Manager.
package resourcepool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0/taskrunner"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

// Manager is the set of hooks a Pool drives over the lifetime of its resources.
type Manager[T comparable] interface {
	// Acquire creates a new resource.
	Acquire(ctx context.Context) (T, error)

	// RefurbishOnCheckout prepares res before it is handed to a caller. If it returns an error res is destroyed and
	// checkout continues with another resource.
	RefurbishOnCheckout(ctx context.Context, res T) error

	// RefurbishOnCheckin prepares res before it becomes idle. If it returns an error res is destroyed.
	RefurbishOnCheckin(ctx context.Context, res T) error

	// RefurbishIdle tests an idle resource. If it returns an error res is destroyed.
	RefurbishIdle(ctx context.Context, res T) error

	// Destroy releases res. checkedOut is true when a caller may still hold res. Errors are logged and otherwise
	// ignored.
	Destroy(ctx context.Context, res T, checkedOut bool) error
}

// Config configures a Pool. Zero durations disable the corresponding behavior.
type Config struct {
	MinSize       int
	MaxSize       int
	StartSize     int
	IncrementSize int

	// IdleTestPeriod is how often idle resources are tested with RefurbishIdle.
	IdleTestPeriod time.Duration

	// MaxIdleTime is how long a resource may stay idle before it is destroyed.
	MaxIdleTime time.Duration

	// ExcessMaxIdleTime is how long a resource may stay idle while the pool holds more than MinSize resources.
	ExcessMaxIdleTime time.Duration

	// MaxAge is the maximum lifetime of a resource. Checked-out resources are not destroyed for age until checked in
	// and swept.
	MaxAge time.Duration

	// ExpirationEnforcementDelay is the period of the expiration sweep. If 0 it is derived from the smallest nonzero
	// of MaxIdleTime, ExcessMaxIdleTime, MaxAge and DestroyOverdueTime divided by 4.
	ExpirationEnforcementDelay time.Duration

	// DestroyOverdueTime is how long a resource may stay checked out before it is reclaimed and destroyed.
	DestroyOverdueTime time.Duration

	// DebugStoreCheckoutStack records the stack of every checkout so overdue resources can be traced to their
	// borrower.
	DebugStoreCheckoutStack bool

	// ForceSynchronousCheckins runs RefurbishOnCheckin on the goroutine calling Checkin instead of the runner.
	ForceSynchronousCheckins bool

	// AcquireRetryAttempts is the number of acquisition attempts per acquisition task. 0 or less retries until the
	// pool is closed.
	AcquireRetryAttempts int
	AcquireRetryDelay    time.Duration

	// BreakOnAcquireFailure breaks the pool when an acquisition task exhausts its attempts.
	BreakOnAcquireFailure bool

	// Runner executes acquisitions, asynchronous checkins and maintenance. If nil the pool starts and owns one.
	Runner taskrunner.Runner

	// Scheduler triggers maintenance. If nil the pool starts and owns one.
	Scheduler *taskrunner.Scheduler

	Logger tracelog.Leveled

	// Label identifies the pool in log messages.
	Label string
}

type resource struct {
	created      time.Time
	lastCheckin  time.Time
	lastCheckout time.Time
	checkedOut   bool
	checkingIn   bool
	testing      bool
	stack        []byte
}

// Pool is a bounded pool of resources of type T.
type Pool[T comparable] struct {
	cfg Config
	mgr Manager[T]

	runner          taskrunner.Runner
	ownsRunner      bool
	scheduler       *taskrunner.Scheduler
	ownsScheduler   bool
	cancelJobs      []func()
	expirationDelay time.Duration
	startTime       time.Time
	closedChan      chan struct{}

	mu              sync.Mutex
	notify          chan struct{}
	managed         map[T]*resource
	idle            []T
	excluded        map[T]struct{}
	target          int
	pendingAcquires int
	pendingDestroys int
	waiters         int
	broken          bool
	closed          bool
	acquireFailures uint64

	acquireCount    int64
	destroyCount    int64
	reclaimedCount  int64
	failedCheckouts int64
	failedCheckins  int64
	failedIdleTests int64

	lastAcquireFailure  error
	lastCheckoutFailure error
	lastCheckinFailure  error
	lastIdleTestFailure error
}

// New creates a pool and begins acquiring StartSize resources in the background.
func New[T comparable](mgr Manager[T], config Config) (*Pool[T], error) {
	if config.MaxSize < 1 {
		return nil, errors.New("resourcepool: MaxSize must be at least 1")
	}
	if config.MinSize < 0 || config.MinSize > config.MaxSize {
		return nil, errors.New("resourcepool: MinSize must be between 0 and MaxSize")
	}
	if config.IncrementSize < 1 {
		config.IncrementSize = 1
	}
	config.StartSize = clamp(config.StartSize, config.MinSize, config.MaxSize)

	p := &Pool[T]{
		cfg:        config,
		mgr:        mgr,
		runner:     config.Runner,
		scheduler:  config.Scheduler,
		startTime:  time.Now(),
		closedChan: make(chan struct{}),
		notify:     make(chan struct{}),
		managed:    make(map[T]*resource),
		excluded:   make(map[T]struct{}),
		target:     config.StartSize,
	}
	if p.runner == nil {
		p.runner = taskrunner.NewPool(taskrunner.Options{NumWorkers: 3, Label: config.Label, Logger: config.Logger})
		p.ownsRunner = true
	}
	if p.scheduler == nil {
		p.scheduler = taskrunner.NewScheduler()
		p.ownsScheduler = true
	}

	p.expirationDelay = effectiveExpirationEnforcementDelay(&config)
	if p.expirationDelay > 0 {
		p.cancelJobs = append(p.cancelJobs, p.scheduler.Schedule(p.expirationDelay, func() { p.post(p.cullExpired) }))
	}
	if config.IdleTestPeriod > 0 {
		p.cancelJobs = append(p.cancelJobs, p.scheduler.Schedule(config.IdleTestPeriod, func() { p.post(p.testIdle) }))
	}

	p.mu.Lock()
	p.recheckResizeLocked()
	p.mu.Unlock()

	return p, nil
}

func effectiveExpirationEnforcementDelay(config *Config) time.Duration {
	if config.ExpirationEnforcementDelay > 0 {
		return config.ExpirationEnforcementDelay
	}
	var smallest time.Duration
	for _, d := range []time.Duration{config.MaxIdleTime, config.ExcessMaxIdleTime, config.MaxAge, config.DestroyOverdueTime} {
		if d > 0 && (smallest == 0 || d < smallest) {
			smallest = d
		}
	}
	return smallest / 4
}

// EffectiveExpirationEnforcementDelay returns the period of the expiration sweep, or 0 if none runs.
func (p *Pool[T]) EffectiveExpirationEnforcementDelay() time.Duration {
	return p.expirationDelay
}

// Checkout returns an idle resource, growing the pool if necessary. It waits until a resource is available, timeout
// elapses (ErrTimeout), ctx is done, or an acquisition task exhausts its attempts while it waits (*AcquireError). A
// timeout of 0 waits indefinitely.
func (p *Pool[T]) Checkout(ctx context.Context, timeout time.Duration) (T, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		res, err := p.claim(ctx, deadline)
		if err != nil {
			var zero T
			return zero, err
		}

		err = p.mgr.RefurbishOnCheckout(ctx, res)
		if err == nil {
			return res, nil
		}

		p.mu.Lock()
		p.failedCheckouts++
		p.lastCheckoutFailure = err
		_, known := p.managed[res]
		if known {
			p.removeLocked(res)
			p.recheckResizeLocked()
		}
		p.mu.Unlock()

		p.cfg.Logger.Log(ctx, tracelog.LogLevelDebug, "resource failed checkout refurbishment", map[string]any{"pool": p.cfg.Label, "err": err})
		if known {
			p.destroyAsync(res, false)
		}
	}
}

func (p *Pool[T]) claim(ctx context.Context, deadline <-chan time.Time) (T, error) {
	var zero T
	var failuresAtWait uint64
	waited := false

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closed {
			return zero, ErrClosed
		}
		if p.broken {
			return zero, ErrBroken
		}

		if len(p.idle) > 0 {
			res := p.idle[0]
			p.idle[0] = zero
			p.idle = p.idle[1:]

			rec := p.managed[res]
			rec.checkedOut = true
			rec.lastCheckout = time.Now()
			if p.cfg.DebugStoreCheckoutStack {
				rec.stack = debug.Stack()
			}
			return res, nil
		}

		if waited && p.acquireFailures != failuresAtWait {
			return zero, &AcquireError{Err: p.lastAcquireFailure}
		}

		p.waiters++
		p.growLocked()
		failuresAtWait = p.acquireFailures
		notify := p.notify
		p.mu.Unlock()

		var err error
		select {
		case <-notify:
		case <-deadline:
			err = ErrTimeout
		case <-ctx.Done():
			err = ctx.Err()
		}

		p.mu.Lock()
		p.waiters--
		waited = true
		if err != nil {
			return zero, err
		}
	}
}

// Checkin returns a checked-out resource to the pool. Unless ForceSynchronousCheckins is set, refurbishment runs on
// the runner and Checkin returns immediately.
func (p *Pool[T]) Checkin(res T) error {
	p.mu.Lock()
	rec, ok := p.managed[res]
	switch {
	case !ok && p.closed:
		p.mu.Unlock()
		return ErrClosed
	case !ok:
		p.mu.Unlock()
		return ErrUnknownResource
	case !rec.checkedOut || rec.checkingIn:
		p.mu.Unlock()
		return ErrNotCheckedOut
	}
	rec.checkingIn = true
	p.mu.Unlock()

	if p.cfg.ForceSynchronousCheckins {
		p.refurbishCheckin(context.Background(), res)
		return nil
	}
	if err := p.runner.Post(func(ctx context.Context) { p.refurbishCheckin(ctx, res) }); err != nil {
		p.refurbishCheckin(context.Background(), res)
	}
	return nil
}

func (p *Pool[T]) refurbishCheckin(ctx context.Context, res T) {
	p.mu.Lock()
	_, excluded := p.excluded[res]
	skip := excluded || p.closed
	p.mu.Unlock()

	var err error
	if !skip {
		err = p.mgr.RefurbishOnCheckin(ctx, res)
	}

	p.mu.Lock()
	rec, ok := p.managed[res]
	if !ok {
		p.mu.Unlock()
		return
	}
	_, excluded = p.excluded[res]
	if err != nil {
		p.failedCheckins++
		p.lastCheckinFailure = err
	}
	if err != nil || excluded || p.closed {
		p.removeLocked(res)
		p.recheckResizeLocked()
		p.mu.Unlock()

		if err != nil {
			p.cfg.Logger.Log(ctx, tracelog.LogLevelDebug, "resource failed checkin refurbishment", map[string]any{"pool": p.cfg.Label, "err": err})
		}
		p.destroyNow(ctx, res, false)
		return
	}

	rec.checkedOut = false
	rec.checkingIn = false
	rec.lastCheckin = time.Now()
	rec.stack = nil
	p.idle = append(p.idle, res)
	p.signalLocked()
	p.mu.Unlock()
}

// MarkBroken removes res from service. An idle resource is destroyed immediately. A checked-out resource is
// destroyed when it is checked in.
func (p *Pool[T]) MarkBroken(res T) error {
	p.mu.Lock()
	rec, ok := p.managed[res]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownResource
	}
	if rec.checkedOut || rec.testing {
		p.excluded[res] = struct{}{}
		p.recheckResizeLocked()
		p.mu.Unlock()
		return nil
	}
	p.removeLocked(res)
	p.recheckResizeLocked()
	p.mu.Unlock()

	p.destroyAsync(res, false)
	return nil
}

// Reset destroys every resource and repopulates the pool to StartSize. Idle resources are destroyed immediately.
// Checked-out resources are destroyed when they are checked in. Reset also clears a broken pool.
func (p *Pool[T]) Reset() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	var doomed []T
	for res, rec := range p.managed {
		if rec.checkedOut || rec.testing {
			p.excluded[res] = struct{}{}
			continue
		}
		doomed = append(doomed, res)
	}
	for _, res := range doomed {
		delete(p.managed, res)
	}
	p.idle = nil
	p.broken = false
	p.target = p.cfg.StartSize
	p.recheckResizeLocked()
	p.signalLocked()
	p.mu.Unlock()

	p.cfg.Logger.Log(context.Background(), tracelog.LogLevelDebug, "pool reset", map[string]any{"pool": p.cfg.Label, "destroyed": len(doomed)})
	for _, res := range doomed {
		p.destroyAsync(res, false)
	}
}

// Close closes the pool. Idle resources are destroyed immediately. If drain is true Close waits for checked-out
// resources to be checked in and destroys them then. Otherwise they are destroyed immediately. Close always waits for
// destroys already queued on the runner. Close is idempotent.
func (p *Pool[T]) Close(drain bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.closedChan)

	var idle, outstanding []T
	for res, rec := range p.managed {
		switch {
		case rec.testing || rec.checkingIn:
		case !rec.checkedOut:
			idle = append(idle, res)
		case !drain:
			outstanding = append(outstanding, res)
		}
	}
	for _, res := range idle {
		delete(p.managed, res)
	}
	for _, res := range outstanding {
		delete(p.managed, res)
		delete(p.excluded, res)
	}
	p.idle = nil
	p.signalLocked()
	p.mu.Unlock()

	for _, cancel := range p.cancelJobs {
		cancel()
	}

	ctx := context.Background()
	for _, res := range idle {
		p.destroyNow(ctx, res, false)
	}
	for _, res := range outstanding {
		p.destroyNow(ctx, res, true)
	}

	p.mu.Lock()
	for p.pendingDestroys > 0 || (drain && (len(p.managed) > 0 || p.pendingAcquires > 0)) {
		notify := p.notify
		p.mu.Unlock()
		<-notify
		p.mu.Lock()
	}
	p.mu.Unlock()

	if p.ownsRunner {
		p.runner.Close(false)
	}
	if p.ownsScheduler {
		p.scheduler.Stop()
	}
}

// NumCheckoutWaiters returns the number of callers blocked in Checkout.
func (p *Pool[T]) NumCheckoutWaiters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiters
}

// Stat returns a snapshot of pool statistics.
func (p *Pool[T]) Stat() *Stat {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &Stat{
		managed:             len(p.managed),
		idle:                len(p.idle),
		pendingAcquires:     p.pendingAcquires,
		waiters:             p.waiters,
		target:              p.target,
		broken:              p.broken,
		acquireCount:        p.acquireCount,
		destroyCount:        p.destroyCount,
		reclaimedCount:      p.reclaimedCount,
		failedCheckouts:     p.failedCheckouts,
		failedCheckins:      p.failedCheckins,
		failedIdleTests:     p.failedIdleTests,
		lastAcquireFailure:  p.lastAcquireFailure,
		lastCheckoutFailure: p.lastCheckoutFailure,
		lastCheckinFailure:  p.lastCheckinFailure,
		lastIdleTestFailure: p.lastIdleTestFailure,
		startTime:           p.startTime,
		expirationDelay:     p.expirationDelay,
	}
	for res, rec := range p.managed {
		if rec.checkedOut {
			s.checkedOut++
			if _, ok := p.excluded[res]; ok {
				s.orphaned++
			}
		}
	}
	return s
}

// growLocked raises the target size when waiters outnumber the resources the pool is growing toward. The target grows
// by at least IncrementSize and never beyond MaxSize.
func (p *Pool[T]) growLocked() {
	live := p.liveLocked()
	if live >= p.cfg.MaxSize {
		return
	}
	desired := live + p.waiters
	if desired >= p.target {
		desired = max(desired, p.target+p.cfg.IncrementSize)
		p.target = clamp(desired, p.cfg.MinSize, p.cfg.MaxSize)
	}
	p.recheckResizeLocked()
}

// recheckResizeLocked starts acquisitions until live and pending resources reach the target size.
func (p *Pool[T]) recheckResizeLocked() {
	if p.closed || p.broken {
		return
	}
	if p.target < p.cfg.MinSize {
		p.target = p.cfg.MinSize
	}
	expand := p.target - (p.liveLocked() + p.pendingAcquires)
	for i := 0; i < expand; i++ {
		p.pendingAcquires++
		if err := p.runner.Post(p.acquireTask); err != nil {
			p.pendingAcquires--
			p.cfg.Logger.Log(context.Background(), tracelog.LogLevelWarn, "could not schedule acquisition", map[string]any{"pool": p.cfg.Label, "err": err})
			return
		}
	}
}

// liveLocked returns the number of managed resources not already condemned.
func (p *Pool[T]) liveLocked() int {
	return len(p.managed) - len(p.excluded)
}

func (p *Pool[T]) removeLocked(res T) {
	delete(p.managed, res)
	delete(p.excluded, res)
	for i, r := range p.idle {
		if r == res {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	p.signalLocked()
}

// signalLocked wakes every goroutine waiting on a pool state change.
func (p *Pool[T]) signalLocked() {
	close(p.notify)
	p.notify = make(chan struct{})
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
