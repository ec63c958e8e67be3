package eventloop

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/internal/protocol/static"
	"github.com/panjf2000/gnet/v2"
)

// chunkBacklog is how many produced chunks may wait for the loop per
// connection before the producer blocks.
const chunkBacklog = 4

// response streams one request's bytes from the goroutine that produces them
// to the event loop.
//
// The producer runs the whole pipeline (resolve, open, read) off the loop, so
// a slow content store never stalls other connections. Every Write hands one
// chunk to the loop and wakes the connection; it blocks while chunkBacklog
// chunks are already waiting, which is how a client that stops reading ends
// up pausing the file read.
type response struct {
	conn   gnet.Conn
	chunks chan []byte

	// outcome is written by the producer before chunks is closed
	outcome static.Outcome

	gone      chan struct{}
	abandoned sync.Once
}

// startResponse serves raw on a new goroutine and returns the response the
// loop should pump.
func startResponse(ctx context.Context, h *static.Handler, c gnet.Conn, info static.ConnInfo, raw string) *response {
	r := &response{
		conn:   c,
		chunks: make(chan []byte, chunkBacklog),
		gone:   make(chan struct{}),
	}
	go r.produce(ctx, h, info, raw)
	return r
}

func (r *response) produce(ctx context.Context, h *static.Handler, info static.ConnInfo, raw string) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Panic in response producer for %s: %v", info, p)
			r.outcome = static.Outcome{Close: true, Err: fmt.Errorf("panic: %v", p)}
		}
		close(r.chunks)
		_ = r.conn.Wake(nil)
	}()

	r.outcome = h.Serve(ctx, info, raw, r)
}

// Write queues a copy of p for the loop. It fails with net.ErrClosed once the
// connection has been closed.
func (r *response) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	select {
	case r.chunks <- bytes.Clone(p):
	case <-r.gone:
		return 0, net.ErrClosed
	}

	_ = r.conn.Wake(nil)
	return len(p), nil
}

// abandon unblocks the producer after the connection closed. Safe to call
// more than once.
func (r *response) abandon() {
	r.abandoned.Do(func() { close(r.gone) })
}
