package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/pkg/content"
	contentFs "github.com/marmos91/dittoweb/pkg/content/fs"
	contentS3 "github.com/marmos91/dittoweb/pkg/content/s3"
	"github.com/mitchellh/mapstructure"
)

// CreateContentStore creates the content root based on configuration.
//
// This factory function uses the Type field to determine which backend
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the backend's constructor.
//
// Supported types:
//   - "filesystem": Uses pkg/content/fs (files under a local directory)
//   - "s3": Uses pkg/content/s3 (Amazon S3 or compatible storage)
//
// s3Metrics may be nil.
func CreateContentStore(ctx context.Context, cfg *ContentConfig, s3Metrics contentS3.Metrics) (content.Store, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem)
	case "s3":
		return createS3ContentStore(ctx, cfg.S3, s3Metrics)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

// FilesystemContentStoreConfig is the decoded content.filesystem section.
type FilesystemContentStoreConfig struct {
	Path string `mapstructure:"path"`
}

// createFilesystemContentStore creates a filesystem-based content store.
func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	var storeCfg FilesystemContentStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	store, err := contentFs.NewFSContentStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}

	logger.Info("Filesystem content store initialized: root=%s", store.BasePath())

	return store, nil
}

// S3ContentStoreConfig is the decoded content.s3 section.
type S3ContentStoreConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// decodeS3Options decodes and checks the content.s3 section.
func decodeS3Options(options map[string]any) (S3ContentStoreConfig, error) {
	var storeCfg S3ContentStoreConfig
	if err := mapstructure.WeakDecode(options, &storeCfg); err != nil {
		return storeCfg, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return storeCfg, fmt.Errorf("S3 content store: bucket is required")
	}
	if storeCfg.Region == "" {
		return storeCfg, fmt.Errorf("S3 content store: region is required")
	}

	// Default to 10 attempts (AWS default is 3)
	if storeCfg.MaxRetries == 0 {
		storeCfg.MaxRetries = 10
	}

	return storeCfg, nil
}

// newS3Client builds an S3 client from the decoded section.
func newS3Client(ctx context.Context, storeCfg S3ContentStoreConfig) (*s3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Custom endpoint for MinIO, Localstack, etc.
	if storeCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials if provided, otherwise the default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Path-style addressing for MinIO/Localstack
		if storeCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	}), nil
}

// createS3ContentStore creates an S3-based content store.
func createS3ContentStore(ctx context.Context, options map[string]any, m contentS3.Metrics) (content.Store, error) {
	storeCfg, err := decodeS3Options(options)
	if err != nil {
		return nil, err
	}

	client, err := newS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	store, err := contentS3.NewS3ContentStore(ctx, contentS3.S3ContentStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		Metrics:   m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}
