// Package adapter defines the lifecycle contract for the transports that serve
// the static-file pipeline.
//
// Two transports exist:
//   - tcp: a blocking listener that hands each connection to a dispatcher
//     (thread-per-connection or worker pool)
//   - eventloop: a single cooperative event loop
//
// Whichever transport runs, requests go through the same
// internal/protocol/static handler, so responses are identical across modes.
package adapter

import (
	"context"

	"github.com/marmos91/dittoweb/internal/protocol/static"
)

// Adapter is a transport managed by the server.
//
// Lifecycle:
//  1. Creation: built from configuration by pkg/config
//  2. Handler injection: SetHandler() provides the shared request pipeline
//  3. Startup: Serve() binds the port and blocks until shutdown
//  4. Shutdown: Stop() or context cancellation drains connections
//
// Thread safety:
// SetHandler() is called once before Serve(). Stop() may be called
// concurrently with Serve() and more than once.
type Adapter interface {
	// Serve binds the port and serves connections until ctx is cancelled or
	// the transport fails.
	//
	// When ctx is cancelled, Serve stops accepting, lets in-flight responses
	// finish up to the shutdown timeout, force-closes what remains and
	// returns. A bind failure is returned immediately and is fatal.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if binding fails or connections had to be force-closed
	Serve(ctx context.Context) error

	// SetHandler injects the request pipeline shared by every connection.
	SetHandler(h *static.Handler)

	// Stop initiates shutdown and waits for connections to finish or for
	// ctx to expire. Safe to call multiple times.
	Stop(ctx context.Context) error

	// Mode returns the concurrency mode name ("thread", "thread-pool",
	// "async") used in logs and metric labels.
	Mode() string

	// Port returns the bound port once listening, else the configured port.
	Port() int

	// Ready is closed once the port is bound and connections are accepted.
	Ready() <-chan struct{}
}

// Concurrency modes.
const (
	ModeThread     = "thread"
	ModeThreadPool = "thread-pool"
	ModeAsync      = "async"
)

// Modes lists every concurrency mode, in the order they are documented.
var Modes = []string{ModeThread, ModeThreadPool, ModeAsync}
