package static

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittoweb/internal/protocol/static/statictest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startConn serves one end of a pipe and returns the client end plus a channel
// closed when Serve returns.
func startConn(t *testing.T, ctx context.Context, h *Handler) (net.Conn, <-chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewConn(h, server, NewConnInfo("pipe")).Serve(ctx)
	}()
	return client, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("connection did not finish")
	}
}

func TestConn_PipelinedRequests(t *testing.T) {
	site, store := newSiteStore(t, map[string]string{"a.html": "AAAA", "b.html": "BB"})
	h, _ := newTestHandler(t, store, site, nil)
	client, done := startConn(t, context.Background(), h)

	go func() {
		_, _ = client.Write([]byte("GET /a.html HTTP/1.1\r\n\r\nGET /b.html HTTP/1.1\r\n\r\nGET /zz HTTP/1.1\r\n\r\n"))
	}()

	r := bufio.NewReader(client)
	for _, want := range []struct {
		code int
		body string
	}{
		{200, "AAAA"},
		{200, "BB"},
		{404, string(site.NotFound)},
	} {
		resp, err := statictest.ReadResponse(r)
		require.NoError(t, err)
		assert.Equal(t, want.code, resp.Code())
		assert.Equal(t, want.body, string(resp.Body))
	}

	require.NoError(t, client.Close())
	waitDone(t, done)
}

func TestConn_SplitAcrossReads(t *testing.T) {
	site, store := newSiteStore(t, nil)
	h, _ := newTestHandler(t, store, site, nil)
	client, done := startConn(t, context.Background(), h)

	go func() {
		stream := "GET / HTTP/1.1\r\n\r\n"
		for i := 0; i < len(stream); i += 5 {
			_, _ = client.Write([]byte(stream[i:min(i+5, len(stream))]))
		}
	}()

	resp, err := statictest.ReadResponse(bufio.NewReader(client))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code())
	assert.Equal(t, site.Page, resp.Body)

	require.NoError(t, client.Close())
	waitDone(t, done)
}

func TestConn_OversizeRequestRejected(t *testing.T) {
	site, store := newSiteStore(t, nil)
	h, m := newTestHandler(t, store, site, func(o *Options) { o.MaxRequestSize = 64 })
	client, done := startConn(t, context.Background(), h)

	go func() {
		_, _ = client.Write([]byte("GET / HTTP/1.1\r\nX-Pad: " + strings.Repeat("a", 200)))
	}()

	r := bufio.NewReader(client)
	resp, err := statictest.ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Code())

	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
	waitDone(t, done)
	assert.Equal(t, []int{400}, m.Snapshot().Statuses)
}

func TestConn_MalformedClosesAfterEarlierResponses(t *testing.T) {
	site, store := newSiteStore(t, nil)
	h, _ := newTestHandler(t, store, site, nil)
	client, done := startConn(t, context.Background(), h)

	go func() {
		_, _ = client.Write([]byte("GET / HTTP/1.1\r\n\r\nNONSENSE\r\n\r\nGET / HTTP/1.1\r\n\r\n"))
	}()

	r := bufio.NewReader(client)
	resp, err := statictest.ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code())

	resp, err = statictest.ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Code())

	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
	waitDone(t, done)
}

func TestConn_PeerCloseEndsServe(t *testing.T) {
	site, store := newSiteStore(t, nil)
	h, _ := newTestHandler(t, store, site, nil)
	client, done := startConn(t, context.Background(), h)

	_, err := client.Write([]byte("GET / HT"))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	waitDone(t, done)
}

func TestConn_DelayInterruptedByShutdown(t *testing.T) {
	site, store := newSiteStore(t, nil)
	h, m := newTestHandler(t, store, site, func(o *Options) { o.Delay = time.Hour })

	ctx, cancel := context.WithCancel(context.Background())
	client, done := startConn(t, ctx, h)

	_, err := client.Write(statictest.Get("/"))
	require.NoError(t, err)

	cancel()
	waitDone(t, done)

	_, err = client.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Empty(t, m.Snapshot().Statuses)
}

// cancelOnRead cancels a context as soon as a read returns data, so the
// request it carries is framed after shutdown has started.
type cancelOnRead struct {
	net.Conn
	cancel context.CancelFunc
}

func (c *cancelOnRead) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.cancel()
	}
	return n, err
}

func TestConn_FramedRequestAnsweredAfterShutdown(t *testing.T) {
	site, store := newSiteStore(t, nil)
	h, m := newTestHandler(t, store, site, nil)

	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewConn(h, &cancelOnRead{Conn: server, cancel: cancel}, NewConnInfo("pipe")).Serve(ctx)
	}()

	go func() {
		_, _ = client.Write(append(statictest.Get("/"), statictest.Get("/missing")...))
	}()

	r := bufio.NewReader(client)
	resp, err := statictest.ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code())
	assert.Equal(t, site.Page, resp.Body)

	resp, err = statictest.ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Code())

	waitDone(t, done)
	_, err = r.ReadByte()
	assert.Error(t, err)
	assert.Equal(t, []int{200, 404}, m.Snapshot().Statuses)
}

func TestConn_DelayAppliesPerRequest(t *testing.T) {
	site, store := newSiteStore(t, nil)
	h, _ := newTestHandler(t, store, site, func(o *Options) { o.Delay = 50 * time.Millisecond })
	client, done := startConn(t, context.Background(), h)

	start := time.Now()
	go func() {
		_, _ = client.Write(append(statictest.Get("/"), statictest.Get("/")...))
	}()

	r := bufio.NewReader(client)
	for range 2 {
		resp, err := statictest.ReadResponse(r)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.Code())
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, client.Close())
	waitDone(t, done)
}

func TestConn_CancelledBeforeRead(t *testing.T) {
	site, store := newSiteStore(t, nil)
	h, _ := newTestHandler(t, store, site, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, done := startConn(t, ctx, h)
	waitDone(t, done)
}
