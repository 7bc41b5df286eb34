package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/config"
)

// Open builds the configured artifact backend.
// It returns (nil, nil) when artifact storage is disabled.
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil

	case "filesystem":
		b, err := NewFilesystemBackend(cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		return b, nil

	case "s3":
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Str("bucket", cfg.S3.Bucket).
			Str("endpoint", cfg.S3.Endpoint).
			Msg("s3 artifact storage ready")
		return NewS3Backend(client, cfg.S3.Bucket, cfg.S3.Prefix, logger), nil
	}

	return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
}
