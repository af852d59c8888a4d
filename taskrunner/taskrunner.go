// Package taskrunner provides the worker pool and recurring scheduler shared by all sub-pools of a manager.
package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

// ErrClosed is returned by Post after the runner has been closed.
var ErrClosed = errors.New("taskrunner: closed")

// Task is a unit of background work. ctx is done when the task exceeds the runner's MaxTaskTime or when the runner is
// closed with skipPending.
type Task func(ctx context.Context)

// Runner executes posted tasks asynchronously.
type Runner interface {
	// Post queues task. It never blocks on task execution.
	Post(task Task) error

	// Close stops accepting work and waits for in-flight tasks. If skipPending is true queued tasks that have not
	// started are abandoned, otherwise they are run first.
	Close(skipPending bool)

	Stat() Stat
}

// Options configures a Runner.
type Options struct {
	NumWorkers  int
	MaxTaskTime time.Duration // 0 means unbounded
	Label       string
	Logger      tracelog.Leveled
}

// Factory produces Runners. It is the hook through which callers may substitute their own worker pool.
type Factory interface {
	NewRunner(opts Options) Runner
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(opts Options) Runner

func (f FactoryFunc) NewRunner(opts Options) Runner { return f(opts) }

// DefaultFactory builds a *Pool.
var DefaultFactory Factory = FactoryFunc(func(opts Options) Runner { return NewPool(opts) })

// Stat is a snapshot of runner activity.
type Stat struct {
	Workers int
	Active  int
	Idle    int
	Pending int
}

// Pool is a fixed-size worker pool with an unbounded FIFO queue.
type Pool struct {
	opts Options

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	active int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool starts opts.NumWorkers workers (at least one).
func NewPool(opts Options) *Pool {
	if opts.NumWorkers < 1 {
		opts.NumWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{opts: opts, ctx: ctx, cancel: cancel}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(opts.NumWorkers)
	for i := 0; i < opts.NumWorkers; i++ {
		go p.work(i)
	}
	return p
}

func (p *Pool) Post(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

func (p *Pool) Close(skipPending bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	if skipPending {
		if n := len(p.queue); n > 0 {
			p.opts.Logger.Log(p.ctx, tracelog.LogLevelDebug, "abandoning queued tasks", map[string]any{"runner": p.opts.Label, "count": n})
		}
		p.queue = nil
		p.cancel()
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

func (p *Pool) Stat() Stat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stat{
		Workers: p.opts.NumWorkers,
		Active:  p.active,
		Idle:    p.opts.NumWorkers - p.active,
		Pending: len(p.queue),
	}
}

func (p *Pool) work(n int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.active++
		p.mu.Unlock()

		p.run(n, task)

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

func (p *Pool) run(n int, task Task) {
	ctx := p.ctx
	if p.opts.MaxTaskTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.MaxTaskTime)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.opts.Logger.Log(ctx, tracelog.LogLevelError, "task panicked", map[string]any{
				"runner": fmt.Sprintf("%s-%d", p.opts.Label, n),
				"panic":  r,
				"stack":  string(debug.Stack()),
			})
		}
	}()

	start := time.Now()
	task(ctx)
	if p.opts.MaxTaskTime > 0 && time.Since(start) > p.opts.MaxTaskTime {
		p.opts.Logger.Log(ctx, tracelog.LogLevelWarn, "task exceeded max administrative task time", map[string]any{
			"runner":   fmt.Sprintf("%s-%d", p.opts.Label, n),
			"duration": time.Since(start).String(),
		})
	}
}
