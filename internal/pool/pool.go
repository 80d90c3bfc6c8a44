// Package pool runs a fixed number of workers over an unbounded queue with a
// two-phase shutdown: drain the queue, then stop the workers.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/utils"
)

// Action processes one item. lock is shared by every worker of the pool and
// guards whatever state the action mutates across items.
type Action[T any] func(ctx context.Context, item T, lock *sync.Mutex) error

// Stats counts what the workers did
type Stats struct {
	Processed int64
	Failed    int64
	Skipped   int64
}

type config struct {
	dequeueTimeout time.Duration
	logger         logging.Logger
}

// Option configures a Pool
type Option func(*config)

// WithDequeueTimeout bounds how long an idle worker waits before logging and
// waiting again.
func WithDequeueTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dequeueTimeout = d
		}
	}
}

// WithLogger sets the pool logger
func WithLogger(l logging.Logger) Option {
	return func(c *config) {
		c.logger = logging.OrNoOp(l)
	}
}

// Pool is a set of workers consuming one queue
type Pool[T any] struct {
	name    string
	queue   *Queue[T]
	workers int
	action  Action[T]
	cfg     config

	lock      sync.Mutex
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// New creates a pool; workers below 1 are raised to 1
func New[T any](name string, queue *Queue[T], workers int, action Action[T], opts ...Option) *Pool[T] {
	if workers < 1 {
		workers = 1
	}
	cfg := config{
		dequeueTimeout: utils.DefaultDequeueTimeout,
		logger:         logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pool[T]{
		name:    name,
		queue:   queue,
		workers: workers,
		action:  action,
		cfg:     cfg,
	}
}

// Queue returns the queue the pool consumes
func (p *Pool[T]) Queue() *Queue[T] {
	return p.queue
}

// Start launches the workers. Once ctx is cancelled the workers keep taking
// items off the queue but acknowledge them without running the action.
func (p *Pool[T]) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.cfg.logger.Debug("Starting pool",
			logging.F("pool", p.name),
			logging.F("workers", p.workers),
		)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.work(ctx, i)
		}
	})
}

// Finish waits for the queue to drain, stops the workers and waits for them
func (p *Pool[T]) Finish() {
	p.stopOnce.Do(func() {
		p.queue.Join()
		for i := 0; i < p.workers; i++ {
			p.queue.putStop()
		}
		p.wg.Wait()
		stats := p.Stats()
		p.cfg.logger.Debug("Pool finished",
			logging.F("pool", p.name),
			logging.F("processed", stats.Processed),
			logging.F("failed", stats.Failed),
			logging.F("skipped", stats.Skipped),
		)
	})
}

// Stats returns the counters so far
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Skipped:   p.skipped.Load(),
	}
}

func (p *Pool[T]) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		e, ok := p.queue.get(p.cfg.dequeueTimeout)
		if !ok {
			p.cfg.logger.Debug("Worker idle",
				logging.F("pool", p.name),
				logging.F("worker", id),
				logging.F("timeout", p.cfg.dequeueTimeout.String()),
			)
			continue
		}
		if e.stop {
			p.queue.TaskDone()
			return
		}
		if ctx.Err() != nil {
			p.skipped.Add(1)
			p.queue.TaskDone()
			continue
		}
		p.run(ctx, id, e.item)
		p.queue.TaskDone()
	}
}

func (p *Pool[T]) run(ctx context.Context, id int, item T) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.cfg.logger.Error("Worker action panicked",
				logging.F("pool", p.name),
				logging.F("worker", id),
				logging.F("panic", fmt.Sprint(r)),
			)
		}
	}()

	if err := p.action(ctx, item, &p.lock); err != nil {
		p.failed.Add(1)
		p.cfg.logger.Warn("Worker action failed",
			logging.F("pool", p.name),
			logging.F("worker", id),
			logging.F("error", err.Error()),
		)
		return
	}
	p.processed.Add(1)
}
