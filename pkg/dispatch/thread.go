package dispatch

import (
	"context"
	"sync"

	"github.com/marmos91/dittoweb/pkg/adapter"
)

// Thread runs every task on its own goroutine. Concurrency is unbounded; the
// listener's accept rate limit is the only throttle.
type Thread struct {
	ctx    context.Context
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewThread returns a thread-per-connection dispatcher.
func NewThread() *Thread {
	return &Thread{ctx: context.Background()}
}

// Mode returns "thread".
func (d *Thread) Mode() string {
	return adapter.ModeThread
}

// Start records the handling context.
func (d *Thread) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = ctx
}

// Dispatch starts task on a new goroutine.
func (d *Thread) Dispatch(task Task) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	ctx := d.ctx
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		task(ctx)
	}()
	return nil
}

// Close rejects further tasks. Running tasks are unaffected.
func (d *Thread) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

// Wait joins every running task.
func (d *Thread) Wait() {
	d.wg.Wait()
}
