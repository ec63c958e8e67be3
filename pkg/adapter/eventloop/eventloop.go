// Package eventloop implements the async concurrency mode: every connection
// is multiplexed onto one gnet event loop pinned to a single OS thread.
package eventloop

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
	"github.com/panjf2000/gnet/v2"
)

const (
	// drainPollInterval is how often a connection with unsent outbound bytes
	// is re-checked during shutdown.
	drainPollInterval = 10 * time.Millisecond

	// writePollInterval is how often a connection over the high-water mark is
	// re-checked while it streams a response.
	writePollInterval = time.Millisecond

	// minHighWater is the outbound high-water mark for small chunk sizes;
	// larger chunk sizes raise it to highWaterChunks chunks.
	minHighWater    = 64 << 10
	highWaterChunks = 4

	// maxChunksPerTurn bounds the chunks one connection writes per callback.
	maxChunksPerTurn = 16
)

// Config holds the event loop parameters.
//
// Default values (applied by New if zero):
//   - ShutdownTimeout: 30s
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// ShutdownTimeout bounds how long Serve waits for outbound data to drain
	// after shutdown starts, before the engine is stopped.
	ShutdownTimeout time.Duration

	// MetricsLogInterval is how often the connection count is logged, driven
	// by the loop's ticker. 0 disables it.
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

// Adapter implements adapter.Adapter on a gnet engine with exactly one event
// loop.
//
// Scheduling:
// All callbacks run on the loop goroutine, which is locked to its OS thread,
// and none of them blocks. Each request is produced on its own goroutine
// (resolve, open and body reads may all block on the content store) and its
// bytes reach the loop one chunk at a time. The loop writes chunks while
// gnet's outbound buffer stays under a high-water mark. Once the buffer goes
// over it, the connection is suspended and polled until the client has read
// enough. A connection writes at most maxChunksPerTurn chunks before yielding
// to the others. Pipelined requests on one connection are answered strictly
// in order, one response at a time.
//
// Delay:
// The artificial per-request delay is a suspension point. The head request
// of a connection arms a timer; when it fires the timer wakes the connection
// and the loop answers the request on its next OnTraffic. Other connections
// keep being served meanwhile. Requests of one connection wait their delays
// one after the other, in order.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. New connections are closed on open and inbound bytes are discarded
//  3. Every connection is woken. Requests still waiting out their delay are
//     dropped; the response in progress and requests already framed are
//     finished, then the connection closes once its outbound buffer is empty
//  4. After all connections closed, or ShutdownTimeout, the engine is stopped,
//     which closes whatever remains, and producers still running are cancelled
type Adapter struct {
	gnet.BuiltinEventEngine

	config  Config
	handler *static.Handler
	metrics metrics.FileServerMetrics

	mu     sync.Mutex
	engine gnet.Engine
	booted bool

	ready   chan struct{}
	stopped chan struct{}

	connCount   atomic.Int32
	connections sync.Map // id -> gnet.Conn

	// highWater is the outbound byte count above which a connection stops
	// writing until the client reads
	highWater int

	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	shutdown     chan struct{}

	// requestCtx outlives shutdown so started responses can finish; it is
	// cancelled once the engine has stopped
	requestCtx     context.Context
	cancelRequests context.CancelFunc
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an event loop adapter. m may be nil.
func New(config Config, m metrics.FileServerMetrics) (*Adapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid event loop config: %w", err)
	}
	if m == nil {
		m = metrics.NewNoopFileServerMetrics()
	}

	requestCtx, cancelRequests := context.WithCancel(context.Background())

	return &Adapter{
		config:         config,
		metrics:        m,
		ready:          make(chan struct{}),
		stopped:        make(chan struct{}),
		shutdown:       make(chan struct{}),
		requestCtx:     requestCtx,
		cancelRequests: cancelRequests,
	}, nil
}

// SetHandler injects the request pipeline.
func (s *Adapter) SetHandler(h *static.Handler) {
	s.handler = h
}

// Serve runs the event loop until ctx is cancelled or Stop is called.
func (s *Adapter) Serve(ctx context.Context) error {
	defer close(s.stopped)
	defer s.cancelRequests()

	if s.handler == nil {
		return errors.New("event loop has no handler: call SetHandler before Serve")
	}
	s.highWater = max(minHighWater, highWaterChunks*s.handler.Options().ChunkSize)

	opts := []gnet.Option{
		gnet.WithMulticore(false),
		gnet.WithNumEventLoop(1),
		gnet.WithLockOSThread(true),
		gnet.WithReuseAddr(true),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithReadBufferCap(s.handler.Options().ChunkSize),
		gnet.WithLogger(gnetLogger{}),
	}
	if s.config.MetricsLogInterval > 0 {
		opts = append(opts, gnet.WithTicker(true))
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- gnet.Run(s, fmt.Sprintf("tcp://:%d", s.config.Port), opts...)
	}()

	select {
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
		}
		return nil

	case <-ctx.Done():
		logger.Info("Shutdown signal received: %v", ctx.Err())
	case <-s.shutdown:
	}

	s.initiateShutdown()

	// the engine can only be stopped once it has booted
	select {
	case <-s.ready:
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
		}
		return nil
	}

	shutdownErr := s.gracefulShutdown()

	if err := <-runErr; err != nil {
		logger.Debug("Event loop exited: %v", err)
	}
	return shutdownErr
}

// initiateShutdown wakes every connection so it can finish and close. Safe
// to call multiple times.
func (s *Adapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Event loop shutdown initiated")
		s.shuttingDown.Store(true)
		close(s.shutdown)

		s.connections.Range(func(key, value any) bool {
			if err := value.(gnet.Conn).Wake(nil); err != nil {
				logger.Debug("[%s] wake for shutdown: %v", key, err)
			}
			return true
		})
	})
}

// gracefulShutdown waits for connections to close up to ShutdownTimeout,
// then stops the engine.
func (s *Adapter) gracefulShutdown() error {
	logger.Info("Graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	deadline := time.NewTimer(s.config.ShutdownTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(drainPollInterval)
	defer poll.Stop()

	var shutdownErr error
wait:
	for s.connCount.Load() > 0 {
		select {
		case <-poll.C:
		case <-deadline.C:
			remaining := s.connCount.Load()
			logger.Warn("Shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
				remaining, s.config.ShutdownTimeout)
			for range remaining {
				s.metrics.RecordConnectionForceClosed()
			}
			shutdownErr = fmt.Errorf("shutdown timeout: %d connection(s) force-closed", remaining)
			break wait
		}
	}
	if shutdownErr == nil {
		logger.Info("Graceful shutdown complete: all connections closed")
	}

	s.mu.Lock()
	eng, booted := s.engine, s.booted
	s.mu.Unlock()
	if booted {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Stop(stopCtx); err != nil {
			logger.Debug("Error stopping event loop: %v", err)
		}
	}

	return shutdownErr
}

// Stop initiates shutdown and waits for Serve to return or ctx to expire.
func (s *Adapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		<-s.stopped
		return nil
	}
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnBoot records the engine once the port is bound.
func (s *Adapter) OnBoot(eng gnet.Engine) gnet.Action {
	s.mu.Lock()
	s.engine = eng
	s.booted = true
	s.mu.Unlock()

	logger.Info("Listening on port %d (mode: %s)", s.config.Port, s.Mode())
	close(s.ready)
	return gnet.None
}

// OnOpen attaches per-connection state.
func (s *Adapter) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if s.shuttingDown.Load() {
		return nil, gnet.Close
	}

	remote := "unknown"
	if addr := c.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	st := &connState{
		info:   static.NewConnInfo(remote),
		framer: s.handler.NewFramer(),
	}
	c.SetContext(st)
	s.connections.Store(st.info.ID, c)

	current := s.connCount.Add(1)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)
	logger.Debug("[%s] accepted (active: %d)", st.info, current)

	// shutdown may have started between the check above and Store, in which
	// case initiateShutdown did not see this connection
	if s.shuttingDown.Load() {
		_ = c.Wake(nil)
	}

	return nil, gnet.None
}

// OnClose releases per-connection state.
func (s *Adapter) OnClose(c gnet.Conn, err error) gnet.Action {
	st, ok := c.Context().(*connState)
	if !ok {
		return gnet.None
	}
	c.SetContext(nil)

	st.release()
	s.connections.Delete(st.info.ID)

	remaining := s.connCount.Add(-1)
	s.metrics.RecordConnectionClosed()
	s.metrics.SetActiveConnections(remaining)

	if err != nil {
		logger.Debug("[%s] closed: %v (active: %d)", st.info, err, remaining)
	} else {
		logger.Debug("[%s] closed (active: %d)", st.info, remaining)
	}
	return gnet.None
}

// OnTraffic runs for new inbound bytes and for every Wake.
func (s *Adapter) OnTraffic(c gnet.Conn) gnet.Action {
	st, ok := c.Context().(*connState)
	if !ok {
		return gnet.Close
	}

	data, err := c.Next(-1)
	if err != nil {
		logger.Debug("[%s] read error: %v", st.info, err)
		return gnet.Close
	}

	shuttingDown := s.shuttingDown.Load()
	if len(data) > 0 && st.overflow == nil && !shuttingDown {
		requests, frameErr := st.framer.Feed(data)
		st.pending = append(st.pending, requests...)
		if frameErr != nil {
			logger.Warn("[%s] %v", st.info, frameErr)
			st.overflow = frameErr
		}
	}

	if shuttingDown {
		s.dropDelayed(st)
	}
	return s.advance(c, st)
}

// advance streams the current response and starts pending requests until the
// connection has to wait: for its delay, for the producer, or for the client
// to read.
func (s *Adapter) advance(c gnet.Conn, st *connState) gnet.Action {
	delay := s.handler.Options().Delay

	for {
		if st.resp != nil {
			finished, action := s.pump(c, st)
			if !finished {
				return action
			}
			out := st.resp.outcome
			st.resp = nil
			if out.Close {
				return gnet.Close
			}
		}

		if len(st.pending) == 0 {
			break
		}

		if delay > 0 {
			if st.timer == nil {
				st.fired.Store(false)
				st.timer = time.AfterFunc(delay, func() {
					st.fired.Store(true)
					_ = c.Wake(nil)
				})
				return gnet.None
			}
			if !st.fired.Load() {
				return gnet.None
			}
			st.timer = nil
		}

		raw := st.pending[0]
		st.pending[0] = ""
		st.pending = st.pending[1:]
		st.resp = startResponse(s.requestCtx, s.handler, c, st.info, raw)
	}

	if st.overflow != nil {
		s.handler.Reject(st.info, c, static.StatusBadRequest, st.overflow)
		return gnet.Close
	}
	if s.shuttingDown.Load() {
		return s.closeWhenDrained(c, st)
	}
	return gnet.None
}

// pump moves produced chunks into the outbound buffer. finished reports that
// the producer is done and every chunk has been written; otherwise action
// tells the loop what to do with the connection meanwhile.
func (s *Adapter) pump(c gnet.Conn, st *connState) (finished bool, action gnet.Action) {
	for range maxChunksPerTurn {
		if c.OutboundBuffered() >= s.highWater {
			st.pollOutbound(c, writePollInterval)
			return false, gnet.None
		}

		select {
		case chunk, ok := <-st.resp.chunks:
			if !ok {
				return true, gnet.None
			}
			if _, err := c.Write(chunk); err != nil {
				logger.Debug("[%s] write error: %v", st.info, err)
				return false, gnet.Close
			}
		default:
			// the producer wakes the connection with its next chunk
			return false, gnet.None
		}
	}

	// let other connections run; continue on the next turn
	_ = c.Wake(nil)
	return false, gnet.None
}

// dropDelayed discards requests that have not started yet when a delay
// applies to them. Requests with no delay are still answered on shutdown.
func (s *Adapter) dropDelayed(st *connState) {
	if s.handler.Options().Delay <= 0 {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	if n := len(st.pending); n > 0 {
		logger.Debug("[%s] dropping %d delayed request(s) on shutdown", st.info, n)
		st.pending = nil
	}
}

// closeWhenDrained closes an idle connection once its outbound buffer is
// empty, re-checking on a short timer until then.
func (s *Adapter) closeWhenDrained(c gnet.Conn, st *connState) gnet.Action {
	if c.OutboundBuffered() == 0 {
		return gnet.Close
	}
	st.pollOutbound(c, drainPollInterval)
	return gnet.None
}

// OnTick logs the connection count.
func (s *Adapter) OnTick() (time.Duration, gnet.Action) {
	logger.Info("Event loop metrics: active_connections=%d", s.connCount.Load())
	return s.config.MetricsLogInterval, gnet.None
}

// ActiveConnections returns the number of open connections.
func (s *Adapter) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Ready is closed once the event loop has bound the port.
func (s *Adapter) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the configured port.
func (s *Adapter) Port() int {
	return s.config.Port
}

// Mode returns "async".
func (s *Adapter) Mode() string {
	return adapter.ModeAsync
}
