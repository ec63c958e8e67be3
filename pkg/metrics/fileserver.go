package metrics

import "time"

// FileServerMetrics observes the connection-handling pipeline.
//
// One instance is created per run and labelled with the active concurrency
// mode, so dashboards can overlay runs of the three dispatchers. If metrics
// are disabled a no-op implementation is used.
type FileServerMetrics interface {
	// RecordRequest records a completed request with its response status and
	// the time from framing to the last body byte written.
	RecordRequest(status int, duration time.Duration)

	// RecordBytesSent adds body bytes written to clients.
	RecordBytesSent(n int64)

	// SetActiveConnections updates the open connection gauge.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted counts an accepted connection.
	RecordConnectionAccepted()

	// RecordConnectionClosed counts a connection whose handling finished.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts a connection closed by the shutdown
	// timeout rather than by its handler.
	RecordConnectionForceClosed()

	// SetQueueDepth updates the pending-connection gauge (thread-pool mode).
	SetQueueDepth(depth int)
}

// NewNoopFileServerMetrics returns a FileServerMetrics that discards everything.
func NewNoopFileServerMetrics() FileServerMetrics {
	return noopFileServerMetrics{}
}

type noopFileServerMetrics struct{}

func (noopFileServerMetrics) RecordRequest(int, time.Duration) {}
func (noopFileServerMetrics) RecordBytesSent(int64)            {}
func (noopFileServerMetrics) SetActiveConnections(int32)       {}
func (noopFileServerMetrics) RecordConnectionAccepted()        {}
func (noopFileServerMetrics) RecordConnectionClosed()          {}
func (noopFileServerMetrics) RecordConnectionForceClosed()     {}
func (noopFileServerMetrics) SetQueueDepth(int)                {}
