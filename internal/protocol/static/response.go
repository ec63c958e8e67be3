package static

import (
	"errors"
	"fmt"
	"io"
)

// ErrShortBody is returned when the body source ends before the length
// already announced in the response head. The connection can no longer be
// framed by the client and must be closed.
var ErrShortBody = errors.New("body shorter than announced length")

// Flusher is implemented by writers that buffer output, such as a gnet
// connection. A net.Conn is not one.
type Flusher interface {
	Flush() error
}

// Sender writes response heads and streams bodies in fixed-size chunks.
type Sender struct {
	pool *chunkPool
}

// NewSender returns a Sender that streams bodies chunkSize bytes at a time.
func NewSender(chunkSize int) *Sender {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Sender{pool: newChunkPool(chunkSize)}
}

// ChunkSize returns the body chunk size.
func (s *Sender) ChunkSize() int {
	return s.pool.size
}

// Send writes the response head announcing length bytes, then copies exactly
// length bytes from body in chunks, flushing after the head and after every
// chunk when w buffers. A nil body is only valid with length 0, which is how
// the 400, 405 and 500 templates are sent.
//
// Each chunk is fully written before the next is read: partial writes are
// resubmitted until the chunk is transmitted.
//
// Returns the number of body bytes written. On error the response may be
// truncated and the connection must not be reused.
func (s *Sender) Send(w io.Writer, status Status, body io.Reader, length int64) (int64, error) {
	if body == nil && length != 0 {
		return 0, fmt.Errorf("send %s: length %d without a body", status.Text(), length)
	}

	var head [64]byte
	if err := writeFull(w, status.AppendHeader(head[:0], length)); err != nil {
		return 0, fmt.Errorf("write response head: %w", err)
	}
	if err := flush(w); err != nil {
		return 0, fmt.Errorf("flush response head: %w", err)
	}

	if length == 0 {
		return 0, nil
	}

	buf := s.pool.Get()
	defer s.pool.Put(buf)

	var sent int64
	for sent < length {
		want := min(int64(len(buf)), length-sent)
		n, readErr := io.ReadFull(body, buf[:want])
		if n > 0 {
			if err := writeFull(w, buf[:n]); err != nil {
				return sent, fmt.Errorf("write body chunk: %w", err)
			}
			sent += int64(n)
			if err := flush(w); err != nil {
				return sent, fmt.Errorf("flush body chunk: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				if sent < length {
					return sent, fmt.Errorf("sent %d of %d bytes: %w", sent, length, ErrShortBody)
				}
				break
			}
			return sent, fmt.Errorf("read body: %w", readErr)
		}
	}

	return sent, nil
}

// writeFull writes all of p, resubmitting after partial progress.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		p = p[n:]
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}

func flush(w io.Writer) error {
	if f, ok := w.(Flusher); ok {
		return f.Flush()
	}
	return nil
}
