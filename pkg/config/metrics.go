package config

import (
	contentS3 "github.com/marmos91/dittoweb/pkg/content/s3"
	"github.com/marmos91/dittoweb/pkg/metrics"
	promMetrics "github.com/marmos91/dittoweb/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// FileServer is the collector for the active dispatcher (never nil, uses
	// noop if disabled)
	FileServer metrics.FileServerMetrics

	// S3 is the collector for the S3 content store (nil if disabled or the
	// content type is not s3)
	S3 contentS3.Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed collectors labelled with the concurrency mode
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			FileServer: metrics.NewNoopFileServerMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	result := &MetricsResult{
		Server:     server,
		FileServer: promMetrics.NewFileServerMetrics(cfg.Server.Concurrency),
	}
	if cfg.Content.Type == "s3" {
		result.S3 = promMetrics.NewS3Metrics()
	}

	return result
}
