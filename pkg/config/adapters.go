package config

import (
	"fmt"

	"github.com/marmos91/dittoweb/internal/protocol/static"
	"github.com/marmos91/dittoweb/pkg/adapter"
	"github.com/marmos91/dittoweb/pkg/adapter/eventloop"
	"github.com/marmos91/dittoweb/pkg/adapter/tcp"
	"github.com/marmos91/dittoweb/pkg/dispatch"
	"github.com/marmos91/dittoweb/pkg/metrics"
)

// CreateAdapter creates the transport for the configured concurrency mode.
//
// Exactly one adapter serves per run:
//   - thread: tcp listener + one goroutine per connection
//   - thread-pool: tcp listener + fixed worker pool over a FIFO queue
//   - async: single gnet event loop
//
// m may be nil (no metrics).
func CreateAdapter(cfg *Config, m metrics.FileServerMetrics) (adapter.Adapter, error) {
	s := cfg.Server

	switch s.Concurrency {
	case adapter.ModeThread, adapter.ModeThreadPool:
		var d dispatch.Dispatcher
		if s.Concurrency == adapter.ModeThread {
			d = dispatch.NewThread()
		} else {
			d = dispatch.NewPool(s.Workers, m)
		}
		l, err := tcp.New(tcp.Config{
			Port:               s.Port,
			ShutdownTimeout:    s.ShutdownTimeout,
			AcceptRate:         s.AcceptRate,
			AcceptBurst:        s.AcceptBurst,
			MetricsLogInterval: s.MetricsLogInterval,
		}, d, m)
		if err != nil {
			return nil, err
		}
		return l, nil

	case adapter.ModeAsync:
		a, err := eventloop.New(eventloop.Config{
			Port:               s.Port,
			ShutdownTimeout:    s.ShutdownTimeout,
			MetricsLogInterval: s.MetricsLogInterval,
		}, m)
		if err != nil {
			return nil, err
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown concurrency mode: %q (supported: %v)", s.Concurrency, adapter.Modes)
	}
}

// HandlerOptions derives the request pipeline options from configuration.
func HandlerOptions(cfg *Config, m metrics.FileServerMetrics) static.Options {
	return static.Options{
		ChunkSize:       cfg.Server.ChunkSize,
		MaxRequestSize:  cfg.Server.MaxRequestSize,
		DefaultDocument: cfg.Content.DefaultDocument,
		NotFoundPage:    cfg.Content.NotFoundPage,
		Delay:           cfg.Server.EffectiveDelay(),
		Metrics:         m,
	}
}
