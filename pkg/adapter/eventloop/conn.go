package eventloop

import (
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoweb/internal/protocol/static"
	"github.com/panjf2000/gnet/v2"
)

// connState is the per-connection state kept in gnet.Conn's context. It is
// only touched from the event loop, except fired which the delay timer sets.
type connState struct {
	info   static.ConnInfo
	framer *static.Framer

	// pending holds framed requests not yet started, in arrival order
	pending []string

	// overflow is set once the framer rejected the stream; the pending
	// requests are still answered before the 400
	overflow error

	// resp is the response currently being streamed. The next pending
	// request starts only once it has finished.
	resp *response

	// timer is armed while the head of pending waits out the delay
	timer *time.Timer
	fired atomic.Bool

	// drainPoll wakes the connection to re-check a full outbound buffer
	drainPoll *time.Timer
}

// pollOutbound wakes c after d so the loop can look at the outbound buffer
// again. gnet has no callback for a drained buffer.
func (st *connState) pollOutbound(c gnet.Conn, d time.Duration) {
	if st.drainPoll == nil {
		st.drainPoll = time.AfterFunc(d, func() {
			_ = c.Wake(nil)
		})
		return
	}
	st.drainPoll.Reset(d)
}

func (st *connState) stopTimers() {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	if st.drainPoll != nil {
		st.drainPoll.Stop()
		st.drainPoll = nil
	}
}

// release stops the timers and abandons the response in flight.
func (st *connState) release() {
	st.stopTimers()
	if st.resp != nil {
		st.resp.abandon()
		st.resp = nil
	}
	st.pending = nil
	st.framer.Close()
}
