package static

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/marmos91/dittoweb/internal/logger"
)

// Conn drives the pipeline over a blocking net.Conn. It is used by the
// thread-per-connection and thread-pool dispatchers; the goroutine running
// Serve owns the connection and its receive buffer exclusively.
type Conn struct {
	handler *Handler
	conn    net.Conn
	info    ConnInfo
	framer  *Framer
}

// NewConn wraps an accepted connection.
func NewConn(handler *Handler, conn net.Conn, info ConnInfo) *Conn {
	return &Conn{
		handler: handler,
		conn:    conn,
		info:    info,
		framer:  handler.NewFramer(),
	}
}

// Info returns the connection identity used in logs.
func (c *Conn) Info() ConnInfo {
	return c.info
}

// Serve reads, frames and answers requests until the peer closes, a read
// fails, a response forces the connection closed, or ctx is cancelled.
//
// The connection is always closed on return. A panic while handling is
// recovered and logged so one connection cannot take the server down.
//
// ctx is checked between reads and interrupts the artificial delay. A Read
// blocked on an idle peer does not observe ctx; the listener unblocks it by
// moving the read deadline during shutdown. Requests already framed when ctx
// is cancelled are still answered, except those waiting out the delay.
func (c *Conn) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler for %s: %v", c.info, r)
		}
		c.framer.Close()
		_ = c.conn.Close()
	}()

	logger.Debug("[%s] connection open", c.info)

	buf := c.handler.readPool.Get()
	defer c.handler.readPool.Put(buf)

	// a response that has started is not cut short by shutdown
	serveCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("[%s] closed due to server shutdown", c.info)
			return
		default:
		}

		n, readErr := c.conn.Read(buf)
		if n > 0 {
			requests, frameErr := c.framer.Feed(buf[:n])
			for _, raw := range requests {
				if !c.pause(ctx) {
					logger.Debug("[%s] closed during delay: %v", c.info, ctx.Err())
					return
				}
				if out := c.handler.Serve(serveCtx, c.info, raw, c.conn); out.Close {
					return
				}
			}
			if frameErr != nil {
				logger.Warn("[%s] %v", c.info, frameErr)
				c.handler.Reject(c.info, c.conn, StatusBadRequest, frameErr)
				return
			}
		}

		if readErr != nil {
			c.logReadError(readErr)
			return
		}
	}
}

// pause applies the artificial per-request delay. Returns false if ctx was
// cancelled first. Without a delay it never fails.
func (c *Conn) pause(ctx context.Context) bool {
	d := c.handler.opts.Delay
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) logReadError(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("[%s] closed by client", c.info)
	case errors.Is(err, syscall.ECONNRESET):
		logger.Debug("[%s] reset by client", c.info)
	case errors.Is(err, net.ErrClosed):
		logger.Debug("[%s] closed by server", c.info)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("[%s] read interrupted: %v", c.info, err)
	default:
		logger.Debug("[%s] read error: %v", c.info, err)
	}
}
