package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/pkg/crypto"
)

// maxS3Artifact bounds how much is buffered to hash an upload.
const maxS3Artifact = 64 << 20

// S3API is the subset of the S3 client the backend uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Backend stores artifacts as objects in one bucket under a prefix.
type S3Backend struct {
	client S3API
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewS3Client builds an S3 client. A custom endpoint selects an
// S3-compatible service such as MinIO.
func NewS3Client(ctx context.Context, cfg config.S3StorageConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewS3Backend creates an S3 artifact backend.
func NewS3Backend(client S3API, bucket, prefix string, logger zerolog.Logger) *S3Backend {
	return &S3Backend{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "artifacts").Str("bucket", bucket).Logger(),
	}
}

func (b *S3Backend) objectKey(key string) string {
	return b.prefix + key
}

// Store buffers the artifact to hash it, then uploads it.
func (b *S3Backend) Store(ctx context.Context, reader io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(reader, maxS3Artifact+1))
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	if len(data) > maxS3Artifact {
		return "", fmt.Errorf("artifact exceeds %d bytes", maxS3Artifact)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("artifact size mismatch: expected %d, got %d", size, len(data))
	}

	key := crypto.Digest(data)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}

	b.logger.Debug().Str("key", key).Int("size", len(data)).Msg("artifact stored")
	return key, nil
}

// Retrieve downloads the artifact.
func (b *S3Backend) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}
	return out.Body, nil
}

// Delete removes the object. S3 reports success for unknown keys.
func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// Exists issues a HEAD request for the object.
func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat artifact: %w", err)
}

// GetPath returns the s3:// URI of key.
func (b *S3Backend) GetPath(key string) string {
	return "s3://" + b.bucket + "/" + strings.TrimPrefix(b.objectKey(key), "/")
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

var _ Backend = (*S3Backend)(nil)
