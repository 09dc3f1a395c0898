package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config holds object storage settings for export artifacts.
// Supports AWS S3, MinIO, Wasabi, and other S3-compatible services.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Validate checks if the configuration is valid.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 storage: bucket is required")
	}
	if c.AccessKey == "" {
		return errors.New("s3 storage: access key is required")
	}
	if c.SecretKey == "" {
		return errors.New("s3 storage: secret key is required")
	}
	return nil
}

// ArtifactStore uploads export artifacts to S3-compatible storage.
type ArtifactStore struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
}

// NewArtifactStore creates an artifact store.
func NewArtifactStore(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*ArtifactStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 storage: load config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("s3 storage: invalid endpoint: %w", err)
		}
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	store := &ArtifactStore{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "artifact_store").Logger(),
	}

	store.logger.Info().Str("bucket", cfg.Bucket).Msg("artifact store initialized")
	return store, nil
}

// Upload stores an artifact and returns its object key.
func (s *ArtifactStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload artifact %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("artifact uploaded")
	return nil
}

// Ping verifies the bucket is reachable.
func (s *ArtifactStore) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 storage: access bucket: %w", err)
	}
	return nil
}
