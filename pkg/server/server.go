package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/internal/protocol/static"
	"github.com/marmos91/dittoweb/pkg/adapter"
	"github.com/marmos91/dittoweb/pkg/metrics"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("serve has already been called on this server instance")

// stopTimeout bounds each Stop() issued during shutdown. Adapters apply their
// own shutdown timeout inside Serve; this only keeps a misbehaving component
// from blocking the process forever.
const stopTimeout = 60 * time.Second

// DittoServer runs the file-serving adapter selected for this process and,
// optionally, the metrics HTTP server next to it.
//
// Lifecycle:
//  1. Creation: New() with the shared request pipeline and the adapter
//  2. Optional: SetMetricsServer() to expose Prometheus metrics
//  3. Startup: Serve() starts every component concurrently
//  4. Shutdown: context cancellation, or the first component failure, stops
//     every component and waits for all of them
//
// Example usage:
//
//	srv := server.New(handler, a)
//	srv.SetMetricsServer(metricsServer)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
type DittoServer struct {
	handler *static.Handler
	adapter adapter.Adapter

	// mu protects metricsServer before Serve
	mu            sync.Mutex
	metricsServer *metrics.Server

	served atomic.Bool
}

// New creates a server that serves h through a.
//
// The handler is injected into the adapter here, so the adapter is ready to
// Serve as soon as New returns.
//
// Panics if either argument is nil (indicates programmer error).
func New(h *static.Handler, a adapter.Adapter) *DittoServer {
	if h == nil {
		panic("handler cannot be nil")
	}
	if a == nil {
		panic("adapter cannot be nil")
	}

	a.SetHandler(h)
	logger.Info("Registered %s adapter on port %d", a.Mode(), a.Port())

	return &DittoServer{
		handler: h,
		adapter: a,
	}
}

// SetMetricsServer registers the metrics HTTP server. Must be called before
// Serve. A nil server is ignored.
func (s *DittoServer) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = m
}

// Adapter returns the file-serving adapter.
func (s *DittoServer) Adapter() adapter.Adapter {
	return s.adapter
}

// component is one concurrently running part of the server.
type component struct {
	name  string
	serve func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

type componentResult struct {
	name string
	err  error
}

// Serve starts every component and blocks until ctx is cancelled or a
// component stops on its own.
//
// Shutdown behavior:
// Whatever triggers it, every component is cancelled and sent Stop() in
// reverse start order, then Serve waits for all of them to return.
//
// Returns:
//   - nil when ctx was cancelled and every component shut down cleanly
//   - the first component's error if it failed or stopped unexpectedly,
//     joined with any error reported during shutdown (e.g. connections
//     that had to be force-closed)
//   - ErrAlreadyServed on a second call
func (s *DittoServer) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return ErrAlreadyServed
	}

	components := s.components()

	logger.Info("Starting dittoweb with %d component(s)", len(components))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan componentResult, len(components))
	var wg sync.WaitGroup

	startTime := time.Now()
	for _, c := range components {
		wg.Add(1)
		go func(c component) {
			defer wg.Done()
			logger.Debug("Starting %s", c.name)
			results <- componentResult{name: c.name, err: c.serve(runCtx)}
		}(c)
	}
	logger.Debug("Components launched in %v", time.Since(startTime))

	var errs []error
	var pending []componentResult

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())

	case first := <-results:
		pending = append(pending, first)
		if first.err != nil {
			logger.Error("%s failed: %v - initiating shutdown", first.name, first.err)
			errs = append(errs, fmt.Errorf("%s: %w", first.name, first.err))
			// already reported; keep it out of the shutdown loop below
			pending = pending[:0]
		} else if ctx.Err() == nil {
			logger.Warn("%s stopped unexpectedly - initiating shutdown", first.name)
			errs = append(errs, fmt.Errorf("%s stopped unexpectedly", first.name))
		}
	}

	cancel()
	s.stopAll(components)

	wg.Wait()
	close(results)
	for r := range results {
		pending = append(pending, r)
	}
	for _, r := range pending {
		if r.err != nil {
			logger.Error("%s shutdown error: %v", r.name, r.err)
			errs = append(errs, fmt.Errorf("%s: %w", r.name, r.err))
		} else {
			logger.Debug("%s stopped", r.name)
		}
	}

	logger.Info("dittoweb stopped")

	return errors.Join(errs...)
}

// components lists what Serve runs, file server first.
func (s *DittoServer) components() []component {
	a := s.adapter
	components := []component{{
		name:  a.Mode() + " adapter",
		serve: a.Serve,
		stop:  a.Stop,
	}}

	s.mu.Lock()
	m := s.metricsServer
	s.mu.Unlock()

	if m != nil {
		components = append(components, component{
			name:  "metrics server",
			serve: m.Start,
			stop:  m.Stop,
		})
	}

	return components
}

// stopAll issues Stop() to every component in reverse start order.
//
// The components are already cancelled through their context; Stop() makes
// shutdown explicit and waits, bounded by stopTimeout, for each to finish.
func (s *DittoServer) stopAll(components []component) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d component(s)", len(components))

	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		logger.Debug("Stopping %s", c.name)
		if err := c.stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s: %v", c.name, err)
		}
	}
}
