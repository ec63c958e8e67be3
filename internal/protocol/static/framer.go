package static

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrRequestTooLarge is returned by Framer.Feed when the bytes buffered
// without a delimiter exceed the configured maximum.
var ErrRequestTooLarge = errors.New("request exceeds maximum size")

var delimiter = []byte(Delimiter)

// Framer reassembles delimiter-terminated requests from arbitrarily chunked
// reads. It is a pure byte accumulator: headers and bodies are not inspected.
//
// State machine:
//
//	AWAITING_DATA -> ACCUMULATING -> (REQUEST_READY -> AWAITING_DATA)* -> CLOSED
//
// Invariant: after Feed returns, the buffer holds only the bytes that follow
// the last delimiter consumed. Those bytes may already be the start of the
// next pipelined request.
//
// A Framer belongs to exactly one connection and is not safe for concurrent use.
type Framer struct {
	buf []byte

	// scanned is how far buf has been searched without finding a delimiter.
	// The next search resumes len(Delimiter)-1 bytes before it so a delimiter
	// split across reads is still found.
	scanned int

	max    int
	closed bool
}

// NewFramer returns a Framer that rejects more than maxBuffered pending bytes.
// A maxBuffered of 0 disables the limit.
func NewFramer(maxBuffered int) *Framer {
	return &Framer{max: maxBuffered}
}

// Feed appends chunk and returns every request completed by it, in arrival
// order, without their delimiters.
//
// If the remaining partial request exceeds the maximum, the completed
// requests are still returned together with ErrRequestTooLarge; the caller
// answers them first and then rejects the connection.
func (f *Framer) Feed(chunk []byte) ([]string, error) {
	if f.closed {
		return nil, fmt.Errorf("feed after close")
	}
	f.buf = append(f.buf, chunk...)

	var requests []string
	start := 0
	from := max(f.scanned-(len(delimiter)-1), 0)

	for {
		idx := bytes.Index(f.buf[from:], delimiter)
		if idx < 0 {
			break
		}
		end := from + idx
		requests = append(requests, string(f.buf[start:end]))
		start = end + len(delimiter)
		from = start
	}

	if start > 0 {
		n := copy(f.buf, f.buf[start:])
		f.buf = f.buf[:n]
	}
	f.scanned = len(f.buf)

	if f.max > 0 && len(f.buf) > f.max {
		return requests, fmt.Errorf("%d bytes buffered without a delimiter (max %d): %w",
			len(f.buf), f.max, ErrRequestTooLarge)
	}

	return requests, nil
}

// Buffered returns the number of bytes held for an incomplete request.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Close discards buffered bytes. The Framer must not be fed afterwards.
func (f *Framer) Close() {
	f.buf = nil
	f.scanned = 0
	f.closed = true
}
