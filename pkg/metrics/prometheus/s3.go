package prometheus

import (
	"time"

	"github.com/marmos91/dittoweb/pkg/content/s3"
	"github.com/marmos91/dittoweb/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// s3Metrics is the Prometheus implementation of s3.Metrics.
type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesRead         prometheus.Counter
}

// NewS3Metrics creates S3 collectors on the global registry.
//
// Returns nil if metrics are not enabled, which the S3 content store treats
// as "collection off".
func NewS3Metrics() s3.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewS3MetricsWith(metrics.GetRegistry())
}

// NewS3MetricsWith registers the S3 collectors on reg.
func NewS3MetricsWith(reg prometheus.Registerer) s3.Metrics {
	factory := promauto.With(reg)

	return &s3Metrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoweb_s3_operations_total",
				Help: "Total number of S3 operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoweb_s3_operation_duration_seconds",
				Help: "Duration of S3 operations in seconds",
				Buckets: []float64{
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.5,   // 500ms
					1.0,   // 1s
					5.0,   // 5s
				},
			},
			[]string{"operation"},
		),
		bytesRead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dittoweb_s3_bytes_read_total",
				Help: "Total object bytes read from S3",
			},
		),
	}
}

func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *s3Metrics) RecordBytesRead(n int64) {
	m.bytesRead.Add(float64(n))
}
