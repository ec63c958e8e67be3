// Package static implements the connection-handling pipeline shared by every
// dispatcher: request framing, request-line parsing, path resolution and
// response streaming.
//
// The pipeline is I/O-agnostic. The blocking dispatchers drive it through
// Conn, which owns a net.Conn and reads in a loop. The event-loop dispatcher
// feeds bytes from its readiness callbacks into a Framer and calls
// Handler.Serve directly, writing to the event loop's buffered connection.
// Either way each complete request goes through the same steps:
//
//	Framer.Feed -> ParseRequest -> Resolver.Resolve -> Sender.Send
//
// Wire format:
//
//	request:  METHOD SP TARGET ...\r\n (header-like lines) \r\n\r\n
//	response: HTTP/1.1 <status>\r\nContent-Length: <n>\r\n\r\n<n body bytes>
//
// Only GET is served. Headers and request bodies are not interpreted.
package static
