package static

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/pkg/content"
	contentFs "github.com/marmos91/dittoweb/pkg/content/fs"
	"github.com/marmos91/dittoweb/pkg/metrics"
)

// Options configures the pipeline. It is built once at startup and never
// modified; every dispatcher reads it through the Handler.
type Options struct {
	// ChunkSize is the receive size and the body chunk size (default 1024).
	ChunkSize int

	// MaxRequestSize bounds the bytes buffered for one incomplete request.
	// 0 means unlimited.
	MaxRequestSize int

	// DefaultDocument is the key served for the target "/" (default page.html).
	DefaultDocument string

	// NotFoundPage is a local file path whose bytes form the 404 body
	// (default www/404.html). It is read from the local filesystem whatever
	// the content backend.
	NotFoundPage string

	// Delay is an artificial pause before each request is processed.
	Delay time.Duration

	// Metrics receives per-request observations (nil means no-op).
	Metrics metrics.FileServerMetrics
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.DefaultDocument == "" {
		o.DefaultDocument = DefaultDocument
	}
	if o.NotFoundPage == "" {
		o.NotFoundPage = DefaultNotFoundPage
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNoopFileServerMetrics()
	}
}

// ConnInfo identifies a connection in logs.
type ConnInfo struct {
	ID     string
	Remote string
}

// NewConnInfo assigns a short random id to a connection from remote.
func NewConnInfo(remote string) ConnInfo {
	return ConnInfo{ID: uuid.NewString()[:8], Remote: remote}
}

func (c ConnInfo) String() string {
	return c.ID + "@" + c.Remote
}

// Outcome describes how one request was answered.
type Outcome struct {
	Request   Request
	Status    Status
	BodyBytes int64

	// Close is set when the connection must not be used for further requests:
	// the request was rejected (400) or the response could not be completed.
	Close bool

	// Err is the write or read failure that forced Close, if any.
	Err error
}

// Handler runs Parser -> Resolver -> Sender for one framed request.
//
// A Handler is shared by all connections and is safe for concurrent use.
type Handler struct {
	opts     Options
	store    content.Store
	resolver *Resolver
	sender   *Sender
	readPool *chunkPool

	errorPages   content.Store
	notFoundKey  string
	notFoundPath string
}

// NewHandler builds the pipeline over store.
//
// The 404 page directory is opened as its own filesystem store. If the
// directory does not exist the server still starts and answers misses with an
// empty 404 body; a warning is logged.
func NewHandler(ctx context.Context, store content.Store, opts Options) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("content store is required")
	}
	opts.applyDefaults()

	h := &Handler{
		opts:         opts,
		store:        store,
		resolver:     NewResolver(store, opts.DefaultDocument),
		sender:       NewSender(opts.ChunkSize),
		readPool:     newChunkPool(opts.ChunkSize),
		notFoundKey:  filepath.Base(opts.NotFoundPage),
		notFoundPath: opts.NotFoundPage,
	}

	pages, err := contentFs.NewFSContentStore(ctx, filepath.Dir(opts.NotFoundPage))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("404 page directory unavailable (%v): not-found responses will have an empty body", err)
	} else {
		h.errorPages = pages
		if _, err := pages.Stat(ctx, h.notFoundKey); err != nil {
			logger.Warn("404 page %s not found: not-found responses will have an empty body", opts.NotFoundPage)
		}
	}

	return h, nil
}

// Options returns the pipeline options.
func (h *Handler) Options() Options {
	return h.opts
}

// NewFramer returns a Framer with the configured request size limit.
func (h *Handler) NewFramer() *Framer {
	return NewFramer(h.opts.MaxRequestSize)
}

// Close releases the 404 page store. The content store is owned by the caller.
func (h *Handler) Close() error {
	if h.errorPages != nil {
		return h.errorPages.Close()
	}
	return nil
}

// Serve answers one framed request on w.
func (h *Handler) Serve(ctx context.Context, conn ConnInfo, raw string, w io.Writer) Outcome {
	start := time.Now()
	out := h.serve(ctx, conn, raw, w)
	h.record(conn, out, start)
	return out
}

// Reject answers with a body-less status and marks the connection for
// closing. Used when framing fails before a request can be parsed.
func (h *Handler) Reject(conn ConnInfo, w io.Writer, status Status, cause error) Outcome {
	start := time.Now()
	logger.Debug("[%s] rejecting connection with %s: %v", conn, status.Text(), cause)
	out := h.empty(w, Request{}, status, true)
	h.record(conn, out, start)
	return out
}

func (h *Handler) serve(ctx context.Context, conn ConnInfo, raw string, w io.Writer) Outcome {
	req, err := ParseRequest(raw)
	if err != nil {
		logger.Debug("[%s] %v", conn, err)
		return h.empty(w, req, StatusBadRequest, true)
	}

	if req.Method != MethodGet {
		return h.empty(w, req, StatusMethodNotAllowed, false)
	}

	res, err := h.resolver.Resolve(ctx, req.Target)
	if err != nil {
		logger.Error("[%s] %v", conn, err)
		return h.empty(w, req, StatusInternalServerError, false)
	}
	if !res.Exists {
		return h.notFound(ctx, conn, w, req)
	}

	body, info, err := h.store.Open(ctx, res.Key)
	if err != nil {
		if content.IsNotFound(err) {
			// removed between Stat and Open
			return h.notFound(ctx, conn, w, req)
		}
		logger.Error("[%s] open %s: %v", conn, res.Key, err)
		return h.empty(w, req, StatusInternalServerError, false)
	}
	defer body.Close()

	return h.stream(w, req, StatusOK, body, info.Size)
}

func (h *Handler) notFound(ctx context.Context, conn ConnInfo, w io.Writer, req Request) Outcome {
	if h.errorPages == nil {
		return h.empty(w, req, StatusNotFound, false)
	}

	body, info, err := h.errorPages.Open(ctx, h.notFoundKey)
	if err != nil {
		if content.IsNotFound(err) {
			logger.Warn("[%s] 404 page %s missing, sending empty body", conn, h.notFoundPath)
		} else {
			logger.Error("[%s] open 404 page %s: %v", conn, h.notFoundPath, err)
		}
		return h.empty(w, req, StatusNotFound, false)
	}
	defer body.Close()

	return h.stream(w, req, StatusNotFound, body, info.Size)
}

func (h *Handler) empty(w io.Writer, req Request, status Status, closeAfter bool) Outcome {
	_, err := h.sender.Send(w, status, nil, 0)
	return Outcome{
		Request: req,
		Status:  status,
		Close:   closeAfter || err != nil,
		Err:     err,
	}
}

func (h *Handler) stream(w io.Writer, req Request, status Status, body io.Reader, length int64) Outcome {
	sent, err := h.sender.Send(w, status, body, length)
	return Outcome{
		Request:   req,
		Status:    status,
		BodyBytes: sent,
		Close:     err != nil,
		Err:       err,
	}
}

func (h *Handler) record(conn ConnInfo, out Outcome, start time.Time) {
	elapsed := time.Since(start)
	h.opts.Metrics.RecordRequest(out.Status.Code(), elapsed)
	h.opts.Metrics.RecordBytesSent(out.BodyBytes)

	if out.Err != nil {
		logger.Debug("[%s] %s %s -> %d failed after %d bytes: %v",
			conn, out.Request.Method, out.Request.Target, out.Status.Code(), out.BodyBytes, out.Err)
		return
	}
	if logger.IsDebug() {
		logger.Debug("[%s] %s %s -> %d (%d bytes, %v)",
			conn, out.Request.Method, out.Request.Target, out.Status.Code(), out.BodyBytes, elapsed)
	}
}
