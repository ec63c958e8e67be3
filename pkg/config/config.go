package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete dittoweb configuration.
//
// This structure captures all configurable aspects of the server:
//   - Logging configuration
//   - Server settings (port, concurrency mode, delay, shutdown)
//   - Content root selection and configuration (backend-specific)
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOWEB_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// A Config is built once at startup and treated as read-only afterwards.
// Components receive the values they need by parameter; nothing reads it
// through package-level state.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains listener and dispatch settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Content specifies where served files come from
	Content ContentConfig `mapstructure:"content" yaml:"content"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains listener and dispatch settings.
type ServerConfig struct {
	// Port is the TCP port to listen on
	Port int `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`

	// Concurrency selects the dispatch strategy
	// Valid values: thread, thread-pool, async
	Concurrency string `mapstructure:"concurrency" yaml:"concurrency" validate:"required,oneof=thread thread-pool async"`

	// Workers is the pool size in thread-pool mode
	Workers int `mapstructure:"workers" yaml:"workers" validate:"gte=0"`

	// Delay enables an artificial pause before each request is processed
	Delay bool `mapstructure:"delay" yaml:"delay"`

	// DelayDuration is the length of the artificial pause
	DelayDuration time.Duration `mapstructure:"delay_duration" yaml:"delay_duration" validate:"gte=0"`

	// ChunkSize is the receive size and the response body chunk size in bytes
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size" validate:"gte=1"`

	// MaxRequestSize bounds the bytes buffered for one incomplete request
	// 0 means unlimited
	MaxRequestSize int `mapstructure:"max_request_size" yaml:"max_request_size" validate:"gte=0"`

	// ShutdownTimeout is the maximum time to wait for connections to finish
	// before they are force-closed
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// AcceptRate limits accepted connections per second (thread and
	// thread-pool modes). 0 means unlimited.
	AcceptRate uint `mapstructure:"accept_rate" yaml:"accept_rate"`

	// AcceptBurst is the burst allowed above AcceptRate
	AcceptBurst uint `mapstructure:"accept_burst" yaml:"accept_burst"`

	// MetricsLogInterval is how often connection counts are logged
	// 0 disables periodic logging
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"gte=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// EffectiveDelay returns the per-request pause, or 0 when the delay is off.
func (c ServerConfig) EffectiveDelay() time.Duration {
	if !c.Delay {
		return 0
	}
	return c.DelayDuration
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns the metrics endpoint on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for /metrics
	Port int `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
}

// ContentConfig specifies the content root.
//
// The Type field determines which backend is used. Only the corresponding
// type-specific section is used.
type ContentConfig struct {
	// Type specifies which content backend to use
	// Valid values: filesystem, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem s3"`

	// DefaultDocument is the key served for the target "/"
	DefaultDocument string `mapstructure:"default_document" yaml:"default_document" validate:"required"`

	// NotFoundPage is a local file whose bytes form every 404 body
	NotFoundPage string `mapstructure:"not_found_page" yaml:"not_found_page" validate:"required"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOWEB_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are the scalar keys that may be set from the environment without a
// config file. AutomaticEnv only consults keys viper already knows about.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.port",
	"server.concurrency",
	"server.workers",
	"server.delay",
	"server.delay_duration",
	"server.chunk_size",
	"server.max_request_size",
	"server.shutdown_timeout",
	"server.accept_rate",
	"server.accept_burst",
	"server.metrics_log_interval",
	"server.metrics.enabled",
	"server.metrics.port",
	"content.type",
	"content.default_document",
	"content.not_found_page",
	"content.filesystem.path",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use DITTOWEB_ prefix and underscores
	// Example: DITTOWEB_SERVER_CONCURRENCY=async
	v.SetEnvPrefix("DITTOWEB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// 0 means unlimited, so the default cannot be applied after unmarshalling
	v.SetDefault("server.max_request_size", DefaultMaxRequestSize)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittoweb/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is reported by the OS layer,
		// not as ConfigFileNotFoundError
		if configPath != "" && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittoweb")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittoweb")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
