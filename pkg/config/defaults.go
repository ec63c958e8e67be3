package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittoweb/internal/protocol/static"
	"github.com/marmos91/dittoweb/pkg/adapter"
	"github.com/marmos91/dittoweb/pkg/dispatch"
)

// Default values for fields left unset.
const (
	DefaultPort            = 8085
	DefaultDelayDuration   = 5 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsPort     = 9090
	DefaultMaxRequestSize  = 64 * 1024
	DefaultContentPath     = "."
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the content factories
//
// MaxRequestSize is the exception: 0 is a meaningful "unlimited", so only a
// negative value is replaced.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyContentDefaults(&cfg.Content)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets listener and dispatch defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Concurrency == "" {
		cfg.Concurrency = adapter.ModeThread
	}
	cfg.Concurrency = strings.ToLower(cfg.Concurrency)

	if cfg.Workers == 0 {
		cfg.Workers = dispatch.DefaultWorkers
	}
	if cfg.DelayDuration == 0 {
		cfg.DelayDuration = DefaultDelayDuration
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = static.DefaultChunkSize
	}
	if cfg.MaxRequestSize < 0 {
		cfg.MaxRequestSize = DefaultMaxRequestSize
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

// applyContentDefaults sets content root defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.DefaultDocument == "" {
		cfg.DefaultDocument = static.DefaultDocument
	}
	if cfg.NotFoundPage == "" {
		cfg.NotFoundPage = static.DefaultNotFoundPage
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = DefaultContentPath
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			MaxRequestSize: DefaultMaxRequestSize,
		},
		Content: ContentConfig{
			Filesystem: make(map[string]any),
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
