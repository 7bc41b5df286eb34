package handler

import (
	"context"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/pkg/result"
	"github.com/prn-tf/owl-middleware/internal/service"
)

// AuthService is the part of service.AuthService used over HTTP.
type AuthService interface {
	RegisterEmail(ctx context.Context, input service.RegisterEmailInput) (*service.SessionOutput, error)
	Login(ctx context.Context, email, password string) (*service.SessionOutput, error)
	Me(ctx context.Context, caller *domain.User) (*domain.User, error)
}

// ContainerService is the part of service.ContainerService used over HTTP.
type ContainerService interface {
	Create(ctx context.Context, input service.CreateContainerInput) (*service.CreateContainerOutput, error)
	Get(ctx context.Context, caller *domain.User, id string) (*domain.Container, error)
	List(ctx context.Context, caller *domain.User) ([]*domain.Container, error)
	Delete(ctx context.Context, caller *domain.User, id string) error
	CheckLimits(ctx context.Context, id string) (*domain.Limits, error)
}

// FileService is the part of service.FileService used over HTTP.
type FileService interface {
	Upload(ctx context.Context, input service.UploadInput) (*service.UploadOutput, error)
	Read(ctx context.Context, caller *domain.User, containerID, fileID string) (*service.Content, error)
	Delete(ctx context.Context, caller *domain.User, containerID, fileID string) error
	List(ctx context.Context, caller *domain.User, containerID string) ([]*service.FileView, error)
}

// SearchService runs semantic searches.
type SearchService interface {
	Search(ctx context.Context, caller *domain.User, containerID, query string, limit int) (*service.SearchOutput, error)
}

// ChatService answers questions about a container.
type ChatService interface {
	Chat(ctx context.Context, input service.ChatInput) (*service.ChatOutput, error)
	BatchProcess(ctx context.Context, inputs []service.ChatInput) []result.Result[*service.ChatOutput]
	Summarize(ctx context.Context, caller *domain.User, text string, maxLength int) (*service.SummaryOutput, error)
}

// OCRService recognises text in images.
type OCRService interface {
	Process(ctx context.Context, input service.ProcessInput) (*service.ProcessOutput, error)
}

var (
	_ AuthService      = (*service.AuthService)(nil)
	_ ContainerService = (*service.ContainerService)(nil)
	_ FileService      = (*service.FileService)(nil)
	_ SearchService    = (*service.SearchService)(nil)
	_ ChatService      = (*service.ChatService)(nil)
	_ OCRService       = (*service.OCRService)(nil)
)
