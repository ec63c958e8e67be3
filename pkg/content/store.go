// Package content defines the read-only byte sources the server resolves
// requests against.
//
// A Store answers two questions for a key (a slash-separated path relative to
// the store root): does it name a servable file, and what are its bytes.
// Backends live in sub-packages:
//   - fs: a directory on the local filesystem
//   - s3: objects under a bucket prefix
package content

import (
	"context"
	"io"
	"time"
)

// Info describes a servable file.
type Info struct {
	// Key is the store-relative key that was looked up.
	Key string

	// Size is the exact byte length of the content.
	Size int64

	// ModTime is the last modification time reported by the backend.
	ModTime time.Time
}

// Store is a read-only content source.
//
// Thread safety:
// Implementations must be safe for concurrent use. The thread and
// thread-pool dispatchers call them from many goroutines at once.
type Store interface {
	// Name returns a short backend identifier for logging ("filesystem", "s3").
	Name() string

	// Stat reports the size of the content stored under key.
	//
	// Returns ErrContentNotFound (wrapped) if the key does not name a regular
	// file. Any other error is a backend failure.
	Stat(ctx context.Context, key string) (Info, error)

	// Open returns a reader positioned at the start of the content along with
	// its Info. The size in Info is taken from the opened handle, so it matches
	// the bytes the reader yields unless the content changes concurrently.
	//
	// The caller must close the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, Info, error)

	// Close releases backend resources.
	Close() error
}
