// Package dispatch runs listener callbacks on a fixed set of workers so that
// radio notification handlers never block on user code.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/bluest/internal/groutine"
	"github.com/srg/bluest/internal/ringchan"
)

const (
	DefaultWorkers    = 5
	DefaultQueueDepth = 256
)

// Task is one queued callback. Name is used in logs only.
type Task struct {
	Name string
	Fn   func()
}

// Stats summarizes pool activity.
type Stats struct {
	Queued    int64
	Completed int64
	Dropped   int64
	Panicked  int64
	Pending   int
}

// Pool is a fixed-size worker pool fed by a bounded ring. When the ring is
// full the oldest pending task is dropped and logged; Submit never blocks.
type Pool struct {
	logger  *logrus.Logger
	queue   *ringchan.RingChannel[Task]
	workers int

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	completed atomic.Int64
	panicked  atomic.Int64
}

// New builds a pool. Non-positive sizes fall back to the defaults.
func New(workers, queueDepth int, logger *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Pool{
		logger:  logger,
		queue:   ringchan.New[Task](queueDepth),
		workers: workers,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			groutine.Go(ctx, fmt.Sprintf("dispatch-worker-%d", i), p.work)
		}
	})
}

// Submit queues fn. It is safe to call from notification handlers.
func (p *Pool) Submit(name string, fn func()) {
	if fn == nil {
		return
	}
	p.Start(context.Background())
	if p.queue.ForceSend(Task{Name: name, Fn: fn}) {
		p.logger.WithFields(logrus.Fields{
			"task":    name,
			"pending": p.queue.Len(),
		}).Warn("Dispatch queue full, dropped oldest task")
	}
}

// Stop closes the queue, lets the workers finish what is already queued, and
// waits for them.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.queue.Close()
		p.wg.Wait()
		if p.cancel != nil {
			p.cancel()
		}
	})
}

func (p *Pool) Stats() Stats {
	m := p.queue.GetMetrics()
	return Stats{
		Queued:    m.Written,
		Completed: p.completed.Load(),
		Dropped:   m.Overwritten,
		Panicked:  p.panicked.Load(),
		Pending:   p.queue.Len(),
	}
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.queue.C():
			if !ok {
				return
			}
			p.run(ctx, task)
		}
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.WithFields(logrus.Fields{
				"task":   task.Name,
				"worker": groutine.Name(ctx),
				"error":  groutine.PanicError(task.Name, r),
			}).Error("Listener panicked")
		}
		p.completed.Add(1)
	}()
	task.Fn()
}
