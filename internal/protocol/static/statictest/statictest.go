// Package statictest provides fixtures and a response reader for tests that
// exercise the request pipeline over a real or piped connection.
package statictest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Site is a content root plus a separate 404 page, laid out on disk.
type Site struct {
	Root         string
	NotFoundPage string
	Page         []byte
	NotFound     []byte
	Files        map[string][]byte
}

// NewSite writes a 120-byte page.html and a 50-byte 404 page, plus any extra
// files (keys are slash-separated paths relative to the root).
func NewSite(t testing.TB, extra map[string]string) *Site {
	t.Helper()

	site := &Site{
		Root:     t.TempDir(),
		Page:     bytes.Repeat([]byte("p"), 120),
		NotFound: bytes.Repeat([]byte("n"), 50),
		Files:    make(map[string][]byte),
	}

	pagesDir := filepath.Join(t.TempDir(), "www")
	require.NoError(t, os.MkdirAll(pagesDir, 0755))
	site.NotFoundPage = filepath.Join(pagesDir, "404.html")
	require.NoError(t, os.WriteFile(site.NotFoundPage, site.NotFound, 0644))

	site.write(t, "page.html", site.Page)
	for key, data := range extra {
		site.write(t, key, []byte(data))
	}

	return site
}

func (s *Site) write(t testing.TB, key string, data []byte) {
	t.Helper()
	path := filepath.Join(s.Root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	s.Files[key] = data
}

// Response is a parsed response.
type Response struct {
	StatusLine string
	Length     int
	Body       []byte
}

// Code returns the numeric status from the status line.
func (r Response) Code() int {
	parts := strings.SplitN(r.StatusLine, " ", 3)
	if len(parts) < 2 {
		return 0
	}
	code, _ := strconv.Atoi(parts[1])
	return code
}

// ReadResponse reads one response: status line, Content-Length header, blank
// line and exactly Content-Length body bytes.
func ReadResponse(r *bufio.Reader) (Response, error) {
	status, err := readLine(r)
	if err != nil {
		return Response{}, fmt.Errorf("status line: %w", err)
	}

	header, err := readLine(r)
	if err != nil {
		return Response{}, fmt.Errorf("length header: %w", err)
	}
	value, ok := strings.CutPrefix(header, "Content-Length: ")
	if !ok {
		return Response{}, fmt.Errorf("unexpected header %q", header)
	}
	length, err := strconv.Atoi(value)
	if err != nil {
		return Response{}, fmt.Errorf("bad length %q: %w", value, err)
	}

	blank, err := readLine(r)
	if err != nil {
		return Response{}, fmt.Errorf("blank line: %w", err)
	}
	if blank != "" {
		return Response{}, fmt.Errorf("expected blank line, got %q", blank)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Response{}, fmt.Errorf("body: %w", err)
	}

	return Response{StatusLine: status, Length: length, Body: body}, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(line, "\r\n") {
		return "", fmt.Errorf("line %q not CRLF-terminated", line)
	}
	return strings.TrimSuffix(line, "\r\n"), nil
}

// Get returns the raw bytes of a GET request for target.
func Get(target string) []byte {
	return []byte("GET " + target + " HTTP/1.1\r\nHost: localhost\r\n\r\n")
}
