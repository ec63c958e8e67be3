// Package dispatch schedules accepted connections onto goroutines.
//
// The listener wraps every accepted connection in a Task and hands it to a
// Dispatcher. Dispatchers only decide where and when a Task runs; framing,
// parsing and responding happen inside the Task and are the same for every
// strategy.
package dispatch

import (
	"context"
	"errors"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// Task serves one connection to completion. ctx is the handling context: it
// is cancelled when the server shuts down.
type Task func(ctx context.Context)

// Dispatcher runs Tasks.
//
// Lifecycle:
//  1. Start(ctx) with the handling context
//  2. Dispatch() for each accepted connection
//  3. Close() once the listener stops accepting
//  4. Wait() joins every Task that was accepted by Dispatch
//
// Thread safety:
// Dispatch, Close and Wait may be called from different goroutines. Dispatch
// is only called by the accept loop.
type Dispatcher interface {
	// Mode returns the concurrency mode name.
	Mode() string

	// Start prepares the dispatcher. Tasks receive ctx.
	Start(ctx context.Context)

	// Dispatch schedules task. If it returns an error the task will never
	// run and the caller still owns the connection.
	Dispatch(task Task) error

	// Close stops accepting tasks. Idempotent.
	Close()

	// Wait blocks until every dispatched task has returned.
	Wait()
}
