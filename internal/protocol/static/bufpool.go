package static

import "sync"

// ============================================================================
// Chunk Buffer Pool
// ============================================================================
//
// Every connection needs one receive buffer and every response needs one
// body buffer, both of the configured chunk size. Under the thread and
// thread-pool dispatchers these are allocated per connection and per request,
// so they are pooled to keep GC pressure flat when thousands of short
// connections churn.
//
// Unlike a general-purpose pool there is a single size class: the chunk size
// is fixed for the lifetime of the server.

type chunkPool struct {
	size int
	pool sync.Pool
}

func newChunkPool(size int) *chunkPool {
	p := &chunkPool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Get returns a buffer of exactly the chunk size.
func (p *chunkPool) Get() []byte {
	return (*p.pool.Get().(*[]byte))[:p.size]
}

// Put returns a buffer obtained from Get. Buffers of another capacity are
// dropped.
func (p *chunkPool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	full := buf[:p.size]
	p.pool.Put(&full)
}
