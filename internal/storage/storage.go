// Package storage mirrors finished artifacts to S3-compatible object
// storage. Two drivers exist: minio-go and the AWS SDK.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/reelfetch/backend/internal/config"
)

// Mirror uploads a local file under key.
type Mirror interface {
	Upload(ctx context.Context, key, path string) error
	Ping(ctx context.Context) error
	Bucket() string
}

// New returns the mirror selected by MIRROR_DRIVER, or nil when mirroring
// is disabled.
func New(cfg *config.Config) (Mirror, error) {
	switch cfg.MirrorDriver {
	case "":
		return nil, nil
	case "minio":
		return NewMinioMirror(&MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "s3":
		return NewS3Mirror(&S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown mirror driver %q", cfg.MirrorDriver)
	}
}

// ContentType guesses the MIME type from the artifact extension.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func openArtifact(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, errors.New("artifact is a directory")
	}
	return f, info.Size(), nil
}

// ============================================================================
// MinioMirror (minio-go)
// ============================================================================

// MinioConfig holds the configuration for the minio driver.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region skips the bucket location lookup when set.
	Region string
}

// MinioMirror uploads through minio-go.
type MinioMirror struct {
	client *minio.Client
	bucket string
}

// NewMinioMirror creates a minio driver.
func NewMinioMirror(cfg *MinioConfig) (*MinioMirror, error) {
	// minio-go expects host:port
	endpoint := cfg.Endpoint
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioMirror{client: client, bucket: cfg.Bucket}, nil
}

// Upload streams the file at path to key.
func (m *MinioMirror) Upload(ctx context.Context, key, path string) error {
	f, size, err := openArtifact(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = m.client.PutObject(ctx, m.bucket, key, f, size, minio.PutObjectOptions{
		ContentType: ContentType(path),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (m *MinioMirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", m.bucket, err)
		}
	}
	return nil
}

// Bucket returns the bucket name.
func (m *MinioMirror) Bucket() string {
	return m.bucket
}

// Ping checks that the bucket is reachable.
func (m *MinioMirror) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}

// ============================================================================
// S3Mirror (aws-sdk-go-v2)
// ============================================================================

// S3Config holds the configuration for the s3 driver. Endpoint is only
// needed for non-AWS services.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// S3Mirror uploads through the AWS SDK.
type S3Mirror struct {
	client *s3.Client
	bucket string
}

// NewS3Mirror creates an s3 driver.
func NewS3Mirror(cfg *S3Config) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region:      region,
		Credentials: awscreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	// Custom endpoints are MinIO-style services, which need path-style.
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &S3Mirror{client: s3.New(opts), bucket: cfg.Bucket}, nil
}

// Upload puts the file at path under key.
func (s *S3Mirror) Upload(ctx context.Context, key, path string) error {
	f, size, err := openArtifact(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(ContentType(path)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Bucket returns the bucket name.
func (s *S3Mirror) Bucket() string {
	return s.bucket
}

// Ping checks that the bucket is reachable.
func (s *S3Mirror) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
