package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# dittoweb Configuration File
#
# Generated by "dittoweb init". Every value below is the built-in default.
# Environment variables override file values: DITTOWEB_<SECTION>_<KEY>,
# e.g. DITTOWEB_SERVER_CONCURRENCY=async. CLI flags override both.
`

const s3Example = `. An s3 root is configured as:
  s3:
    region: us-east-1
    bucket: my-site
    key_prefix: public/
    endpoint: http://localhost:9000
    max_retries: 10`

// fieldComments annotates generated keys, addressed by dotted path.
var fieldComments = map[string]string{
	"logging":        "Logging configuration",
	"logging.level":  "Minimum level: DEBUG, INFO, WARN, ERROR",
	"logging.format": "Line format: text or json",
	"logging.output": "stdout, stderr, or a file path",

	"server":                      "Listener and dispatch settings",
	"server.port":                 "TCP port to listen on",
	"server.concurrency":          "Dispatch strategy: thread, thread-pool or async",
	"server.workers":              "Worker count in thread-pool mode",
	"server.delay":                "Pause before answering each request",
	"server.delay_duration":       "Length of the pause when delay is enabled",
	"server.chunk_size":           "Receive size and response chunk size, in bytes",
	"server.max_request_size":     "Largest incomplete request buffered before answering 400 (0 = unlimited)",
	"server.shutdown_timeout":     "How long shutdown waits before force-closing connections",
	"server.accept_rate":          "Accepted connections per second in thread modes (0 = unlimited)",
	"server.accept_burst":         "Burst allowed above accept_rate",
	"server.metrics_log_interval": "Interval for logging connection counts (0 = disabled)",
	"server.metrics":              "Prometheus endpoint served on its own port",

	"content":                  "Content root",
	"content.type":             "Backend: filesystem or s3" + s3Example,
	"content.default_document": "Served for the target /",
	"content.not_found_page":   "Local file used as the body of every 404",
	"content.filesystem":       "Used when type is filesystem",
	"content.s3":               "Used when type is s3",
}

// InitConfig writes a sample configuration file to the default location.
//
// Returns the path written. Fails if a file already exists unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path.
//
// Fails if the file already exists unless force is set. Parent directories
// are created as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and a comment
// above each known key.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	annotate(&doc, "")

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}

	return buf.String(), nil
}

// annotate walks mapping nodes and attaches comments to known keys.
func annotate(node *yaml.Node, prefix string) {
	if node.Kind != yaml.MappingNode {
		for _, child := range node.Content {
			annotate(child, prefix)
		}
		return
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}

		if comment, ok := fieldComments[path]; ok {
			key.HeadComment = comment
		}

		annotate(value, path)
	}
}
