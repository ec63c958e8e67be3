// Package metrics provides Prometheus metrics collection for the server.
//
// Metrics are optional. Until InitRegistry is called every constructor
// returns a no-op implementation, so the dispatchers and content stores run
// unchanged with collection switched off.
//
// Usage:
//
//	metrics.InitRegistry()
//	m := prometheus.NewFileServerMetrics("thread-pool")
//	srv := metrics.NewServer(metrics.ServerConfig{Port: 9090})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is written once by InitRegistry and read everywhere else
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry. Later calls are ignored.
//
// The registry also carries the Go runtime and process collectors so the
// three concurrency modes can be compared on goroutine count and memory.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true once InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
