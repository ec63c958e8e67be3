package static

import "strconv"

const (
	// Delimiter terminates every request. Nothing else ends a request.
	Delimiter = "\r\n\r\n"

	// DefaultChunkSize is both the receive size and the body chunk size.
	DefaultChunkSize = 1024

	// DefaultDocument is served for the target "/".
	DefaultDocument = "page.html"

	// DefaultNotFoundPage is the body of 404 responses, relative to the
	// working directory rather than the content root.
	DefaultNotFoundPage = "www/404.html"

	// MethodGet is the only method served.
	MethodGet = "GET"

	protocolVersion = "HTTP/1.1"
	lengthHeader    = "Content-Length: "
)

// Status selects one of the fixed response templates.
type Status int

const (
	StatusOK                  Status = 200
	StatusBadRequest          Status = 400
	StatusNotFound            Status = 404
	StatusMethodNotAllowed    Status = 405
	StatusInternalServerError Status = 500
)

// Text returns the status line text, e.g. "404 Page Not Found".
func (s Status) Text() string {
	switch s {
	case StatusOK:
		return "200 OK"
	case StatusBadRequest:
		return "400 Bad Request"
	case StatusNotFound:
		return "404 Page Not Found"
	case StatusMethodNotAllowed:
		return "405 Method Not Allowed"
	case StatusInternalServerError:
		return "500 Internal Server Error"
	default:
		return strconv.Itoa(int(s)) + " Unknown"
	}
}

// Code returns the numeric status.
func (s Status) Code() int {
	return int(s)
}

// AppendHeader appends the full response head for a body of length bytes:
// status line, length header and the blank line.
func (s Status) AppendHeader(dst []byte, length int64) []byte {
	dst = append(dst, protocolVersion...)
	dst = append(dst, ' ')
	dst = append(dst, s.Text()...)
	dst = append(dst, "\r\n"...)
	dst = append(dst, lengthHeader...)
	dst = strconv.AppendInt(dst, length, 10)
	dst = append(dst, Delimiter...)
	return dst
}

// Header returns the response head for a body of length bytes.
func (s Status) Header(length int64) []byte {
	return s.AppendHeader(make([]byte, 0, 64), length)
}
