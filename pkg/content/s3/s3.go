// Package s3 implements a content store over objects in an S3 bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittoweb/pkg/content"
)

// API is the subset of the S3 client used by the store. *s3.Client satisfies
// it; tests provide an in-memory fake.
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Metrics observes S3 round trips. Optional: a nil Metrics disables collection.
type Metrics interface {
	ObserveOperation(operation string, duration time.Duration, err error)
	RecordBytesRead(n int64)
}

// S3ContentStore serves objects stored under bucket/keyPrefix.
//
// Key Design:
//   - A request key "docs/a.html" maps to object "<keyPrefix>docs/a.html"
//   - Keys ending in "/" are treated as directories and never served
//   - Keys that are not local paths ("../x", "/x") are rejected as not found
//
// S3 Characteristics:
//   - Every lookup is a HeadObject round trip (no local caching)
//   - Reads stream the object body directly to the connection
//
// Thread Safety:
// Safe for concurrent use; the AWS client is goroutine-safe.
type S3ContentStore struct {
	client    API
	bucket    string
	keyPrefix string
	metrics   Metrics
}

// S3ContentStoreConfig contains configuration for the S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client
	Client API

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "site/" maps request "/index.html" to object "site/index.html"
	KeyPrefix string

	// Metrics receives per-operation observations (optional)
	Metrics Metrics

	// SkipBucketCheck disables the HeadBucket probe at construction time
	SkipBucketCheck bool
}

// NewS3ContentStore creates an S3-backed content store.
//
// The bucket must already exist. Unless SkipBucketCheck is set, access is
// verified with HeadBucket so misconfiguration fails at startup rather than
// on the first request.
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	store := &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: prefix,
		metrics:   cfg.Metrics,
	}

	if !cfg.SkipBucketCheck {
		start := time.Now()
		_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		})
		store.observe("HeadBucket", start, err)
		if err != nil {
			return nil, fmt.Errorf("failed to access bucket %s: %w", cfg.Bucket, err)
		}
	}

	return store, nil
}

// Name returns "s3".
func (s *S3ContentStore) Name() string {
	return "s3"
}

// Stat issues a HeadObject for the key.
func (s *S3ContentStore) Stat(ctx context.Context, key string) (content.Info, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return content.Info{}, err
	}

	start := time.Now()
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	s.observe("HeadObject", start, err)
	if err != nil {
		if isNotFound(err) {
			return content.Info{}, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
		}
		return content.Info{}, fmt.Errorf("failed to head object: %w", err)
	}

	if result.ContentLength == nil {
		return content.Info{}, fmt.Errorf("content length not available for %s", key)
	}

	return content.Info{
		Key:     key,
		Size:    *result.ContentLength,
		ModTime: aws.ToTime(result.LastModified),
	}, nil
}

// Open issues a GetObject and returns its body.
func (s *S3ContentStore) Open(ctx context.Context, key string) (io.ReadCloser, content.Info, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, content.Info{}, err
	}

	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	s.observe("GetObject", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, content.Info{}, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
		}
		return nil, content.Info{}, fmt.Errorf("failed to get object from S3: %w", err)
	}

	if result.ContentLength == nil {
		_ = result.Body.Close()
		return nil, content.Info{}, fmt.Errorf("content length not available for %s", key)
	}

	info := content.Info{
		Key:     key,
		Size:    *result.ContentLength,
		ModTime: aws.ToTime(result.LastModified),
	}

	var body io.ReadCloser = result.Body
	if s.metrics != nil {
		body = &countingReader{ReadCloser: result.Body, metrics: s.metrics}
	}

	return body, info, nil
}

// Close is a no-op; the AWS client holds no per-store resources.
func (s *S3ContentStore) Close() error {
	return nil
}

func (s *S3ContentStore) objectKey(key string) (string, error) {
	if strings.HasSuffix(key, "/") || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
	}
	return s.keyPrefix + path.Clean(key), nil
}

func (s *S3ContentStore) observe(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, time.Since(start), err)
	}
}

// isNotFound matches both error shapes S3 uses for a missing key: HeadObject
// has no body and surfaces as NotFound, GetObject returns NoSuchKey.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

// countingReader reports body bytes to the metrics sink as they are read.
type countingReader struct {
	io.ReadCloser
	metrics Metrics
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 {
		r.metrics.RecordBytesRead(int64(n))
	}
	return n, err
}
