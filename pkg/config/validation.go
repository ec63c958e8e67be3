package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittoweb/pkg/adapter"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that depend
// on more than one field.
//
// Note: Log level and concurrency normalization is handled in ApplyDefaults,
// not here.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Server.Concurrency == adapter.ModeThreadPool && cfg.Server.Workers < 1 {
		return fmt.Errorf("server.workers: must be at least 1 in %s mode (got %d)",
			adapter.ModeThreadPool, cfg.Server.Workers)
	}

	if cfg.Server.Delay && cfg.Server.DelayDuration <= 0 {
		return fmt.Errorf("server.delay_duration: must be positive when delay is enabled")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Server.Port && cfg.Server.Port != 0 {
		return fmt.Errorf("server.metrics.port: %d is already used by the file server", cfg.Server.Port)
	}

	switch cfg.Content.Type {
	case "filesystem":
		path, _ := cfg.Content.Filesystem["path"].(string)
		if path == "" {
			return fmt.Errorf("content.filesystem.path: required for filesystem content")
		}
	case "s3":
		for _, key := range []string{"bucket", "region"} {
			value, _ := cfg.Content.S3[key].(string)
			if value == "" {
				return fmt.Errorf("content.s3.%s: required for s3 content", key)
			}
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
