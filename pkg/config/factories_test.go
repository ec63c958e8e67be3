package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittoweb/pkg/adapter"
)

func TestCreateContentStore_Filesystem(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "page.html"), []byte("hello"), 0644); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}

	cfg := &ContentConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{"path": root},
	}

	store, err := CreateContentStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create filesystem content store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if store.Name() != "filesystem" {
		t.Errorf("Expected store name 'filesystem', got %q", store.Name())
	}
	info, err := store.Stat(ctx, "page.html")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != 5 {
		t.Errorf("Expected size 5, got %d", info.Size)
	}
}

func TestCreateContentStore_FilesystemMissingPath(t *testing.T) {
	cfg := &ContentConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{},
	}

	_, err := CreateContentStore(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateContentStore_FilesystemMissingDirectory(t *testing.T) {
	cfg := &ContentConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{"path": filepath.Join(t.TempDir(), "nope")},
	}

	if _, err := CreateContentStore(context.Background(), cfg, nil); err == nil {
		t.Fatal("Expected error for a root that does not exist")
	}
}

func TestCreateContentStore_UnknownType(t *testing.T) {
	cfg := &ContentConfig{Type: "memory"}

	_, err := CreateContentStore(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("Expected error for unknown store type")
	}
	if !strings.Contains(err.Error(), "unknown content store type") {
		t.Errorf("Expected 'unknown content store type' error, got: %v", err)
	}
}

func TestCreateContentStore_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &ContentConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{"path": t.TempDir()},
	}

	_, err := CreateContentStore(ctx, cfg, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got: %v", err)
	}
}

func TestDecodeS3Options(t *testing.T) {
	opts, err := decodeS3Options(map[string]any{
		"region":     "eu-west-1",
		"bucket":     "site",
		"key_prefix": "public",
		"endpoint":   "http://localhost:9000",
	})
	if err != nil {
		t.Fatalf("decodeS3Options failed: %v", err)
	}

	if opts.Region != "eu-west-1" || opts.Bucket != "site" || opts.KeyPrefix != "public" {
		t.Errorf("Unexpected decoded options: %+v", opts)
	}
	if opts.MaxRetries != 10 {
		t.Errorf("Expected default max retries 10, got %d", opts.MaxRetries)
	}

	// Values from env or TOML may arrive as strings
	opts, err = decodeS3Options(map[string]any{"region": "r", "bucket": "b", "max_retries": "3"})
	if err != nil {
		t.Fatalf("decodeS3Options failed: %v", err)
	}
	if opts.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", opts.MaxRetries)
	}
}

func TestDecodeS3Options_MissingFields(t *testing.T) {
	if _, err := decodeS3Options(map[string]any{"region": "r"}); err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Errorf("Expected bucket error, got: %v", err)
	}
	if _, err := decodeS3Options(map[string]any{"bucket": "b"}); err == nil || !strings.Contains(err.Error(), "region") {
		t.Errorf("Expected region error, got: %v", err)
	}
}

func TestNewS3Client_CustomEndpoint(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	client, err := newS3Client(context.Background(), S3ContentStoreConfig{
		Region:          "us-east-1",
		Bucket:          "site",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		MaxRetries:      2,
	})
	if err != nil {
		t.Fatalf("newS3Client failed: %v", err)
	}

	opts := client.Options()
	if !opts.UsePathStyle {
		t.Error("Expected path-style addressing with a custom endpoint")
	}
	if opts.Region != "us-east-1" {
		t.Errorf("Expected region us-east-1, got %q", opts.Region)
	}
	if opts.Retryer == nil {
		t.Error("Expected a retryer")
	}
}

func TestCreateAdapter_Modes(t *testing.T) {
	for _, mode := range adapter.Modes {
		t.Run(mode, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Server.Concurrency = mode
			cfg.Server.Port = 0

			a, err := CreateAdapter(cfg, nil)
			if err != nil {
				t.Fatalf("CreateAdapter failed: %v", err)
			}
			if a.Mode() != mode {
				t.Errorf("Expected mode %q, got %q", mode, a.Mode())
			}
		})
	}
}

func TestCreateAdapter_UnknownMode(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Concurrency = "fork"

	if _, err := CreateAdapter(cfg, nil); err == nil {
		t.Fatal("Expected error for unknown mode")
	}
}

func TestHandlerOptions(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ChunkSize = 2048
	cfg.Content.DefaultDocument = "index.html"

	opts := HandlerOptions(cfg, nil)
	if opts.ChunkSize != 2048 || opts.DefaultDocument != "index.html" {
		t.Errorf("Unexpected options: %+v", opts)
	}
	if opts.Delay != 0 {
		t.Errorf("Expected no delay while disabled, got %v", opts.Delay)
	}

	cfg.Server.Delay = true
	if got := HandlerOptions(cfg, nil).Delay; got != cfg.Server.DelayDuration {
		t.Errorf("Expected delay %v, got %v", cfg.Server.DelayDuration, got)
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(GetDefaultConfig())

	if result.Server != nil {
		t.Error("Expected nil metrics server when disabled")
	}
	if result.FileServer == nil {
		t.Error("Expected no-op file server metrics when disabled")
	}
	if result.S3 != nil {
		t.Error("Expected nil S3 metrics when disabled")
	}
}
