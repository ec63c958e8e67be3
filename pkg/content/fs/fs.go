// Package fs implements a content store over a local directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/marmos91/dittoweb/pkg/content"
)

// FSContentStore serves regular files below a root directory.
//
// Keys are slash-separated paths relative to the root. Lookups go through an
// os.Root, so neither ".." segments nor symlinks can reach files outside the
// root. Keys that are not local paths ("../x", "/etc/passwd", "") are reported
// as not found without touching the filesystem.
//
// Thread Safety:
// Safe for concurrent use. Every Open returns an independent file handle.
type FSContentStore struct {
	basePath string
	root     *os.Root

	closeOnce sync.Once
}

// NewFSContentStore opens basePath as a content root.
//
// Unlike a writable store the root is never created: a missing directory is a
// configuration error and is reported as such.
//
// Parameters:
//   - ctx: Context for cancellation
//   - basePath: Directory to serve
//
// Returns:
//   - *FSContentStore: Store rooted at basePath
//   - error: If basePath does not exist, is not a directory, or ctx is cancelled
func NewFSContentStore(ctx context.Context, basePath string) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("content root %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content root %s: not a directory", basePath)
	}

	root, err := os.OpenRoot(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open content root %s: %w", basePath, err)
	}

	return &FSContentStore{
		basePath: basePath,
		root:     root,
	}, nil
}

// Name returns "filesystem".
func (s *FSContentStore) Name() string {
	return "filesystem"
}

// BasePath returns the directory the store serves.
func (s *FSContentStore) BasePath() string {
	return s.basePath
}

// Stat reports the size of a regular file.
func (s *FSContentStore) Stat(ctx context.Context, key string) (content.Info, error) {
	if err := ctx.Err(); err != nil {
		return content.Info{}, err
	}

	name, err := localName(key)
	if err != nil {
		return content.Info{}, err
	}

	fi, err := s.root.Stat(name)
	if err != nil {
		return content.Info{}, classify(key, err)
	}

	return regularInfo(key, fi)
}

// Open opens a regular file for reading. The returned Info is taken from the
// opened handle.
func (s *FSContentStore) Open(ctx context.Context, key string) (io.ReadCloser, content.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, content.Info{}, err
	}

	name, err := localName(key)
	if err != nil {
		return nil, content.Info{}, err
	}

	f, err := s.root.Open(name)
	if err != nil {
		return nil, content.Info{}, classify(key, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, content.Info{}, fmt.Errorf("failed to stat content %s: %w", key, err)
	}

	info, err := regularInfo(key, fi)
	if err != nil {
		_ = f.Close()
		return nil, content.Info{}, err
	}

	return f, info, nil
}

// Close releases the root handle. Safe to call more than once.
func (s *FSContentStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.root.Close()
	})
	return err
}

// localName converts a key to an os.Root-relative name, rejecting keys that
// would leave the root lexically.
func localName(key string) (string, error) {
	name := filepath.FromSlash(key)
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
	}
	return filepath.Clean(name), nil
}

func regularInfo(key string, fi iofs.FileInfo) (content.Info, error) {
	if !fi.Mode().IsRegular() {
		return content.Info{}, fmt.Errorf("content %s is not a regular file: %w", key, content.ErrContentNotFound)
	}
	return content.Info{
		Key:     key,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}, nil
}

// classify maps lookup errors to ErrContentNotFound where the path simply
// does not name a file. ENOTDIR covers "file.html/child".
func classify(key string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
	}
	return fmt.Errorf("failed to access content %s: %w", key, err)
}
