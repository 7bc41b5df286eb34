package service

import (
	"context"

	"github.com/prn-tf/owl-middleware/internal/backend"
	"github.com/prn-tf/owl-middleware/internal/llm"
	"github.com/prn-tf/owl-middleware/internal/ocr"
)

// RemoteBackend is the container, file and search service the orchestration
// layer forwards to. Implemented by *backend.Client.
type RemoteBackend interface {
	CreateContainer(ctx context.Context, req backend.CreateContainerRequest) (*backend.ContainerResponse, error)
	DeleteContainer(ctx context.Context, userID int64, containerID string) error

	CreateFile(ctx context.Context, req backend.CreateFileRequest) (*backend.FileResponse, error)
	ReadFile(ctx context.Context, path string, userID int64, containerID string) (*backend.FileResponse, error)
	DeleteFile(ctx context.Context, path string, userID int64, containerID string) error

	SemanticSearch(ctx context.Context, req backend.SearchRequest) (*backend.SearchResponse, error)
	RebuildIndex(ctx context.Context) (*backend.MessageResponse, error)
	Root(ctx context.Context) (*backend.MessageResponse, error)
	Health(ctx context.Context) (bool, error)
}

// Completer produces chat completions. Implemented by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error)
	ModelFor(flag int) string
}

// Recognizer runs OCR over an image. Implemented by *ocr.Client.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, mode ocr.Mode) (*ocr.Result, error)
}

var (
	_ RemoteBackend = (*backend.Client)(nil)
	_ Completer     = (*llm.Client)(nil)
	_ Recognizer    = (*ocr.Client)(nil)
)
