// Package tcp implements the blocking-I/O transport: a TCP listener that hands
// each accepted connection to a dispatcher.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/internal/protocol/static"
	"github.com/marmos91/dittoweb/internal/ratelimiter"
	"github.com/marmos91/dittoweb/pkg/dispatch"
	"github.com/marmos91/dittoweb/pkg/metrics"
)

// Listener implements adapter.Adapter for the thread and thread-pool modes.
//
// Architecture:
// Listener owns the TCP socket and the connection registry. Each accepted
// connection is wrapped in a dispatch.Task that runs a static.Conn loop; the
// dispatcher decides which goroutine runs it. The Listener never reads from a
// connection itself.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (delays abort, loops exit between requests)
//  4. Dispatcher closed (the pool's queue stops accepting and drains)
//  5. Read deadlines moved to now, so connections idling in Read wake up
//  6. Wait for every connection to finish (up to ShutdownTimeout)
//  7. Force-close whatever is still open
//
// Thread safety:
// All methods are safe for concurrent use. Shutdown is guarded by sync.Once.
type Listener struct {
	config     Config
	dispatcher dispatch.Dispatcher
	handler    *static.Handler
	metrics    metrics.FileServerMetrics
	limiter    *ratelimiter.Limiter

	// mu protects listener, which Stop may close while Serve is starting
	mu       sync.Mutex
	listener net.Listener

	// boundPort is the port actually bound, which differs from config.Port
	// when the latter is 0
	boundPort atomic.Int32
	ready     chan struct{}

	// activeConns counts connections from accept until their task returns
	// (or until they are closed after a failed dispatch)
	activeConns sync.WaitGroup
	connCount   atomic.Int32

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// shutdownCtx is the handling context given to every task
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps connection id to net.Conn for read interruption
	// and forced closure
	activeConnections sync.Map
}

// Config holds the listener parameters.
//
// Default values (applied by New if zero):
//   - ShutdownTimeout: 30s
//
// Port 0 binds an ephemeral port; Port() reports it once listening.
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// ShutdownTimeout bounds how long Serve waits for connections after
	// shutdown starts before force-closing them.
	ShutdownTimeout time.Duration

	// AcceptRate limits accepted connections per second. 0 is unlimited.
	AcceptRate uint

	// AcceptBurst is the token bucket size for AcceptRate.
	AcceptBurst uint

	// MetricsLogInterval is how often the active connection count is
	// logged. 0 disables it.
	MetricsLogInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MetricsLogInterval < 0 {
		return fmt.Errorf("invalid MetricsLogInterval %v: must be >= 0", c.MetricsLogInterval)
	}
	return nil
}

// New creates a Listener that schedules connections with d.
//
// Call SetHandler before Serve. m may be nil.
func New(config Config, d dispatch.Dispatcher, m metrics.FileServerMetrics) (*Listener, error) {
	if d == nil {
		return nil, errors.New("dispatcher is required")
	}
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid listener config: %w", err)
	}
	if m == nil {
		m = metrics.NewNoopFileServerMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Listener{
		config:         config,
		dispatcher:     d,
		metrics:        m,
		limiter:        ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}, nil
}

// SetHandler injects the request pipeline.
func (s *Listener) SetHandler(h *static.Handler) {
	s.handler = h
}

// Serve binds the port and accepts connections until ctx is cancelled or
// Stop is called.
//
// Returns:
//   - nil when every connection finished within ShutdownTimeout
//   - error if binding failed or connections had to be force-closed
func (s *Listener) Serve(ctx context.Context) error {
	if s.handler == nil {
		return errors.New("listener has no handler: call SetHandler before Serve")
	}

	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}

	s.mu.Lock()
	select {
	case <-s.shutdown:
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	default:
	}
	s.listener = ln
	s.mu.Unlock()

	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(addr.Port))
	}
	close(s.ready)

	logger.Info("Listening on port %d (mode: %s)", s.Port(), s.Mode())
	if !s.limiter.Unlimited() {
		logger.Debug("Accept rate limit: %d/s (burst %d)", s.config.AcceptRate, s.config.AcceptBurst)
	}

	s.dispatcher.Start(s.shutdownCtx)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics()
	}

	for {
		if err := s.limiter.Wait(s.shutdownCtx); err != nil {
			return s.gracefulShutdown()
		}

		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting connection: %v", err)
				continue
			}
		}

		s.handle(conn)
	}
}

// handle registers conn and hands it to the dispatcher.
func (s *Listener) handle(conn net.Conn) {
	info := static.NewConnInfo(conn.RemoteAddr().String())

	s.activeConns.Add(1)
	current := s.connCount.Add(1)
	s.activeConnections.Store(info.ID, conn)

	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)
	logger.Debug("[%s] accepted (active: %d)", info, current)

	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			s.activeConnections.Delete(info.ID)
			remaining := s.connCount.Add(-1)
			s.metrics.RecordConnectionClosed()
			s.metrics.SetActiveConnections(remaining)
			logger.Debug("[%s] finished (active: %d)", info, remaining)
			s.activeConns.Done()
		})
	}

	task := func(ctx context.Context) {
		defer release()
		static.NewConn(s.handler, conn, info).Serve(ctx)
	}

	if err := s.dispatcher.Dispatch(task); err != nil {
		logger.Debug("[%s] not dispatched: %v", info, err)
		_ = conn.Close()
		release()
	}
}

// initiateShutdown stops accepting and wakes every connection. Safe to call
// multiple times.
func (s *Listener) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Listener shutdown initiated")

		close(s.shutdown)

		s.mu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing listener: %v", err)
			}
		}
		s.mu.Unlock()

		s.cancelRequests()
		s.dispatcher.Close()
		s.interruptReads()
	})
}

// interruptReads moves every read deadline to now. Connections blocked in
// Read return a timeout and exit; a response being written is not affected
// and completes before its loop observes the cancelled context.
func (s *Listener) interruptReads() {
	now := time.Now()
	s.activeConnections.Range(func(key, value any) bool {
		if err := value.(net.Conn).SetReadDeadline(now); err != nil {
			logger.Debug("[%s] set read deadline: %v", key, err)
		}
		return true
	})
}

// drained returns a channel closed once every connection and every
// dispatcher goroutine has finished.
func (s *Listener) drained() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		s.dispatcher.Wait()
		close(done)
	}()
	return done
}

// gracefulShutdown waits for connections up to ShutdownTimeout, then
// force-closes the rest.
func (s *Listener) gracefulShutdown() error {
	s.initiateShutdown()

	logger.Info("Graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	timer := time.NewTimer(s.config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-s.drained():
		logger.Info("Graceful shutdown complete: all connections closed")
		return nil

	case <-timer.C:
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)
		s.forceCloseConnections()
		return fmt.Errorf("shutdown timeout: %d connection(s) force-closed", remaining)
	}
}

// forceCloseConnections closes every registered connection. The owning task
// sees the failed read or write, exits and unregisters it.
func (s *Listener) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		if err := value.(net.Conn).Close(); err != nil {
			logger.Debug("[%s] error force-closing: %v", key, err)
		} else {
			closed++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed %d connection(s)", closed)
	}
}

// Stop initiates shutdown and waits until every connection has finished or
// ctx is done. Safe to call concurrently with Serve and more than once.
func (s *Listener) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	select {
	case <-s.drained():
		return nil
	case <-ctx.Done():
		logger.Warn("Stop: %d connection(s) still active: %v", s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

func (s *Listener) logMetrics() {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			if p, ok := s.dispatcher.(interface{ Pending() int }); ok {
				logger.Info("Listener metrics: active_connections=%d queued=%d", s.connCount.Load(), p.Pending())
			} else {
				logger.Info("Listener metrics: active_connections=%d", s.connCount.Load())
			}
		}
	}
}

// ActiveConnections returns the number of connections accepted and not yet
// finished, including those waiting in the pool queue.
func (s *Listener) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Ready is closed once the port is bound.
func (s *Listener) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the bound port once listening, else the configured port.
func (s *Listener) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Mode returns the dispatcher's concurrency mode.
func (s *Listener) Mode() string {
	return s.dispatcher.Mode()
}
