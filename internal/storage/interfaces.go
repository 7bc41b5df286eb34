// Package storage defines the artifact storage backends.
// Artifacts are derived binaries the middleware produces itself, such as OCR
// visualizations; user files never pass through here, they live on the remote
// backend. Artifacts are content addressed: the key is the SHA-256 of the bytes.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrArtifactNotFound indicates no artifact is stored under the key.
var ErrArtifactNotFound = errors.New("artifact not found")

// Backend defines the interface for artifact storage backends.
// Implementations exist for the local filesystem and S3-compatible services.
type Backend interface {
	// Store stores content from a reader and returns the content hash (SHA-256).
	// Storing the same bytes twice yields the same key and one stored copy.
	Store(ctx context.Context, reader io.Reader, size int64, contentType string) (key string, err error)

	// Retrieve returns the artifact stored under key.
	// The caller must close the returned reader.
	// Returns ErrArtifactNotFound if the key is unknown.
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the artifact. Deleting an unknown key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an artifact is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetPath returns where key is (or would be) stored, for logs and debugging.
	GetPath(key string) string
}
