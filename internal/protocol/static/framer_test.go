package static

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, f *Framer, chunks ...string) []string {
	t.Helper()
	var got []string
	for _, c := range chunks {
		reqs, err := f.Feed([]byte(c))
		require.NoError(t, err)
		got = append(got, reqs...)
	}
	return got
}

func TestFramer_SingleRead(t *testing.T) {
	f := NewFramer(0)
	got := feedAll(t, f, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")

	assert.Equal(t, []string{"GET / HTTP/1.1\r\nHost: x"}, got)
	assert.Equal(t, 0, f.Buffered())
}

func TestFramer_ArbitrarySplits(t *testing.T) {
	stream := "GET /a.html HTTP/1.1\r\nHost: x\r\n\r\nGET /b.html HTTP/1.1\r\n\r\n"
	want := []string{"GET /a.html HTTP/1.1\r\nHost: x", "GET /b.html HTTP/1.1"}

	// every pair of split points, producing three chunks
	for i := 0; i <= len(stream); i++ {
		for j := i; j <= len(stream); j++ {
			f := NewFramer(0)
			got := feedAll(t, f, stream[:i], stream[i:j], stream[j:])
			require.Equal(t, want, got, "splits at %d,%d", i, j)
			require.Equal(t, 0, f.Buffered())
		}
	}
}

func TestFramer_ByteAtATime(t *testing.T) {
	stream := "GET /x HTTP/1.1\r\n\r\n"
	f := NewFramer(0)

	var got []string
	for i := 0; i < len(stream); i++ {
		reqs, err := f.Feed([]byte{stream[i]})
		require.NoError(t, err)
		if i < len(stream)-1 {
			require.Empty(t, reqs, "request recognized early at byte %d", i)
		}
		got = append(got, reqs...)
	}
	assert.Equal(t, []string{"GET /x HTTP/1.1"}, got)
}

func TestFramer_FiveByteReads(t *testing.T) {
	stream := "GET /a.html HTTP/1.1\r\n\r\n"
	f := NewFramer(0)

	var chunks []string
	for i := 0; i < len(stream); i += 5 {
		chunks = append(chunks, stream[i:min(i+5, len(stream))])
	}

	var got []string
	for i, c := range chunks {
		reqs, err := f.Feed([]byte(c))
		require.NoError(t, err)
		if i < len(chunks)-1 {
			assert.Empty(t, reqs)
		}
		got = append(got, reqs...)
	}
	assert.Equal(t, []string{"GET /a.html HTTP/1.1"}, got)
}

func TestFramer_PipelinedInOneRead(t *testing.T) {
	f := NewFramer(0)
	got := feedAll(t, f, "GET /1 HTTP/1.1\r\n\r\nGET /2 HTTP/1.1\r\n\r\nGET /3 HT")

	assert.Equal(t, []string{"GET /1 HTTP/1.1", "GET /2 HTTP/1.1"}, got)
	assert.Equal(t, len("GET /3 HT"), f.Buffered())

	got = feedAll(t, f, "TP/1.1\r\n\r\n")
	assert.Equal(t, []string{"GET /3 HTTP/1.1"}, got)
}

func TestFramer_EmptyRequest(t *testing.T) {
	f := NewFramer(0)
	got := feedAll(t, f, "\r\n\r\n")
	assert.Equal(t, []string{""}, got)
}

func TestFramer_BareCRLFIsNotADelimiter(t *testing.T) {
	f := NewFramer(0)
	got := feedAll(t, f, "GET / HTTP/1.1\r\n", "Host: x\r\n", "\n\r")
	assert.Empty(t, got)
}

func TestFramer_MaxSize(t *testing.T) {
	f := NewFramer(16)

	reqs, err := f.Feed([]byte("GET / HTTP/1.1\r\n\r\n" + strings.Repeat("A", 17)))
	assert.ErrorIs(t, err, ErrRequestTooLarge)
	assert.Equal(t, []string{"GET / HTTP/1.1"}, reqs, "completed requests are returned with the error")
}

func TestFramer_MaxSizeCountsOnlyPending(t *testing.T) {
	f := NewFramer(32)

	// a complete request longer than the limit is fine; only the remainder counts
	long := "GET /" + strings.Repeat("x", 64) + " HTTP/1.1\r\n\r\n"
	reqs, err := f.Feed([]byte(long))
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestFramer_FeedAfterClose(t *testing.T) {
	f := NewFramer(0)
	_, err := f.Feed([]byte("GET /"))
	require.NoError(t, err)

	f.Close()
	assert.Equal(t, 0, f.Buffered())

	_, err = f.Feed([]byte(" HTTP/1.1\r\n\r\n"))
	assert.Error(t, err)
}
