package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/dittoweb/pkg/content"
)

// Resolution is the outcome of resolving a request target.
type Resolution struct {
	// Target is the target as received.
	Target string

	// Key is the store key the target maps to.
	Key string

	// Exists reports whether Key names a servable file.
	Exists bool

	// Info is valid when Exists is true.
	Info content.Info
}

// Resolver maps request targets to content keys.
type Resolver struct {
	store           content.Store
	defaultDocument string
}

// NewResolver returns a Resolver over store. An empty defaultDocument selects
// DefaultDocument.
func NewResolver(store content.Store, defaultDocument string) *Resolver {
	if defaultDocument == "" {
		defaultDocument = DefaultDocument
	}
	return &Resolver{
		store:           store,
		defaultDocument: strings.TrimPrefix(defaultDocument, "/"),
	}
}

// Resolve maps target to a key and checks existence.
//
// The target "/" maps to the default document; any other target is taken
// relative to the store root. A missing file is not an error: it yields
// Exists=false. The error is non-nil only when the store fails for another
// reason (permission, I/O, backend unavailable).
func (r *Resolver) Resolve(ctx context.Context, target string) (Resolution, error) {
	res := Resolution{Target: target, Key: r.Key(target)}

	info, err := r.store.Stat(ctx, res.Key)
	if err != nil {
		if content.IsNotFound(err) {
			return res, nil
		}
		return res, fmt.Errorf("resolve %s: %w", target, err)
	}

	res.Exists = true
	res.Info = info
	return res, nil
}

// Key returns the store key for target without touching the store.
func (r *Resolver) Key(target string) string {
	if target == "/" {
		return r.defaultDocument
	}
	return strings.TrimPrefix(target, "/")
}
