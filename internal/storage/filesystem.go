package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/pkg/crypto"
)

// FilesystemBackend stores artifacts under a sharded directory tree.
type FilesystemBackend struct {
	paths  layout
	tmpDir string
	logger zerolog.Logger
}

// NewFilesystemBackend creates the base and temp directories if needed.
func NewFilesystemBackend(basePath string, logger zerolog.Logger) (*FilesystemBackend, error) {
	tmpDir := filepath.Join(basePath, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	logger.Info().Str("path", basePath).Msg("filesystem artifact storage ready")

	return &FilesystemBackend{
		paths:  newLayout(basePath),
		tmpDir: tmpDir,
		logger: logger.With().Str("component", "artifacts").Logger(),
	}, nil
}

// Store writes to a temp file while hashing, then moves it into place.
func (b *FilesystemBackend) Store(ctx context.Context, reader io.Reader, size int64, _ string) (string, error) {
	tmp, err := os.CreateTemp(b.tmpDir, "artifact-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	digest := crypto.NewDigestReader(reader)
	written, err := io.Copy(tmp, digest)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if size >= 0 && written != size {
		return "", fmt.Errorf("artifact size mismatch: expected %d, got %d", size, written)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := digest.Digest()
	final := b.paths.file(key)

	if _, err := os.Stat(final); err == nil {
		return key, nil
	}
	if err := os.MkdirAll(b.paths.dir(key), 0o755); err != nil {
		return "", fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}

	b.logger.Debug().Str("key", key).Int64("size", written).Msg("artifact stored")
	return key, nil
}

// Retrieve opens the artifact file.
func (b *FilesystemBackend) Retrieve(_ context.Context, key string) (io.ReadCloser, error) {
	if !isValidKey(key) {
		return nil, ErrArtifactNotFound
	}
	f, err := os.Open(b.paths.file(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return f, nil
}

// Delete removes the artifact file.
func (b *FilesystemBackend) Delete(_ context.Context, key string) error {
	if !isValidKey(key) {
		return nil
	}
	err := os.Remove(b.paths.file(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// Exists checks for the artifact file.
func (b *FilesystemBackend) Exists(_ context.Context, key string) (bool, error) {
	if !isValidKey(key) {
		return false, nil
	}
	_, err := os.Stat(b.paths.file(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// GetPath returns the file path of key.
func (b *FilesystemBackend) GetPath(key string) string {
	return b.paths.file(key)
}

var _ Backend = (*FilesystemBackend)(nil)
