package static

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRequest is returned when the request line has fewer than two
// space-separated tokens.
var ErrMalformedRequest = errors.New("malformed request")

// Request is the part of a framed request the server acts on.
type Request struct {
	Method string
	Target string
}

// ParseRequest extracts method and target from the first line of a framed
// request. The first line ends at the first "\r\n" (or is the whole text).
//
// Tokens are separated by single spaces and may be empty: "GET  /x" and
// "GET " both parse with an empty target, which resolves to nothing and is
// answered 404. Only a line without any space is malformed.
func ParseRequest(text string) (Request, error) {
	line, _, _ := strings.Cut(text, "\r\n")

	method, rest, found := strings.Cut(line, " ")
	if !found {
		return Request{}, fmt.Errorf("request line %q: %w", truncate(line, 64), ErrMalformedRequest)
	}

	target, _, _ := strings.Cut(rest, " ")
	return Request{Method: method, Target: target}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
