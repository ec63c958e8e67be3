package statictest

import (
	"sync"
	"time"
)

// Counts is a point-in-time copy of what Metrics recorded.
type Counts struct {
	Statuses    []int
	BytesSent   int64
	Accepted    int
	Closed      int
	ForceClosed int
	Active      int32
	QueueDepths []int
}

// Metrics records pipeline observations for assertions. Safe for concurrent use.
type Metrics struct {
	mu sync.Mutex
	c  Counts
}

func (m *Metrics) RecordRequest(status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Statuses = append(m.c.Statuses, status)
}

func (m *Metrics) RecordBytesSent(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.BytesSent += n
}

func (m *Metrics) SetActiveConnections(count int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Active = count
}

func (m *Metrics) RecordConnectionAccepted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Accepted++
}

func (m *Metrics) RecordConnectionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Closed++
}

func (m *Metrics) RecordConnectionForceClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.ForceClosed++
}

func (m *Metrics) SetQueueDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.QueueDepths = append(m.c.QueueDepths, depth)
}

// Snapshot returns a copy safe to inspect while recording continues.
func (m *Metrics) Snapshot() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.c
	c.Statuses = append([]int(nil), m.c.Statuses...)
	c.QueueDepths = append([]int(nil), m.c.QueueDepths...)
	return c
}
