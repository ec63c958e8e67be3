package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/internal/queue"
	"github.com/marmos91/dittoweb/pkg/adapter"
	"github.com/marmos91/dittoweb/pkg/metrics"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 10

// Pool runs tasks on a fixed set of workers fed by an unbounded FIFO queue.
//
// The accept loop is the only producer. When every worker is busy new
// connections wait in the queue, in arrival order, without being read.
//
// Shutdown:
// Close closes the queue. Each worker keeps popping until the queue is
// drained and then exits, so every accepted connection is still handed to a
// task (which closes it promptly once ctx is cancelled). Wait joins all
// workers.
type Pool struct {
	workers int
	queue   *queue.Queue[Task]
	metrics metrics.FileServerMetrics

	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewPool returns a pool of workers goroutines. workers below 1 selects
// DefaultWorkers. m may be nil.
func NewPool(workers int, m metrics.FileServerMetrics) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if m == nil {
		m = metrics.NewNoopFileServerMetrics()
	}
	return &Pool{
		workers: workers,
		queue:   queue.New[Task](),
		metrics: m,
	}
}

// Mode returns "thread-pool".
func (p *Pool) Mode() string {
	return adapter.ModeThreadPool
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the workers. Calling it again has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		logger.Debug("Starting %d pool workers", p.workers)
		for i := range p.workers {
			p.wg.Add(1)
			go p.work(ctx, i)
		}
	})
}

// Dispatch enqueues task for the next free worker.
func (p *Pool) Dispatch(task Task) error {
	if err := p.queue.Push(task); err != nil {
		return fmt.Errorf("enqueue connection: %w", ErrClosed)
	}
	p.metrics.SetQueueDepth(p.queue.Len())
	return nil
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	return p.queue.Len()
}

// Close closes the queue. Queued tasks are still run.
func (p *Pool) Close() {
	p.queue.Close()
}

// Wait joins every worker. It only returns after Close.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		task, ok := p.queue.Pop()
		if !ok {
			logger.Debug("Pool worker %d exiting", id)
			return
		}
		p.metrics.SetQueueDepth(p.queue.Len())
		p.run(ctx, id, task)
	}
}

// run executes one task. A panicking task must not take the worker with it.
func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in pool worker %d: %v", id, r)
		}
	}()
	task(ctx)
}
