package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/service"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ API = (*tgbotapi.BotAPI)(nil)

// FileFetcher downloads files users sent to the bot.
type FileFetcher interface {
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}

// apiFetcher resolves a file id through the Bot API and downloads it.
type apiFetcher struct {
	api    API
	client *http.Client
	limit  int64
}

func newAPIFetcher(api API, limit int64) *apiFetcher {
	return &apiFetcher{
		api:    api,
		client: &http.Client{Timeout: 60 * time.Second},
		limit:  limit,
	}
}

func (f *apiFetcher) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	url, err := f.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve telegram file: %v", domain.ErrRemoteService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download telegram file: %v", domain.ErrRemoteService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download telegram file: status %d", domain.ErrRemoteService, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if f.limit > 0 {
		body = io.LimitReader(resp.Body, f.limit+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read telegram file: %v", domain.ErrRemoteService, err)
	}
	if f.limit > 0 && int64(len(data)) > f.limit {
		return nil, domain.ErrFileTooLarge
	}
	return data, nil
}

// Services the bot drives.

// AuthService resolves and registers Telegram users.
type AuthService interface {
	ResolveTelegramUser(ctx context.Context, profile service.TelegramProfile) (*domain.User, error)
	RegisterTelegram(ctx context.Context, profile service.TelegramProfile) (*domain.User, error)
	IssueToken(user *domain.User) (string, error)
}

// ContainerService manages containers.
type ContainerService interface {
	Create(ctx context.Context, input service.CreateContainerInput) (*service.CreateContainerOutput, error)
	Get(ctx context.Context, caller *domain.User, id string) (*domain.Container, error)
	List(ctx context.Context, caller *domain.User) ([]*domain.Container, error)
	Resolve(ctx context.Context, caller *domain.User, preferredID string) (*domain.Container, error)
}

// FileService manages files.
type FileService interface {
	Upload(ctx context.Context, input service.UploadInput) (*service.UploadOutput, error)
	Read(ctx context.Context, caller *domain.User, containerID, fileID string) (*service.Content, error)
	Download(ctx context.Context, caller *domain.User, fileID, containerID string) (*service.Download, error)
	Delete(ctx context.Context, caller *domain.User, containerID, fileID string) error
	List(ctx context.Context, caller *domain.User, containerID string) ([]*service.FileView, error)
	ListForUser(ctx context.Context, caller *domain.User) ([]*domain.File, error)
}

// SearchService searches containers and reports on the backend.
type SearchService interface {
	Search(ctx context.Context, caller *domain.User, containerID, query string, limit int) (*service.SearchOutput, error)
	RebuildIndex(ctx context.Context, caller *domain.User) (string, error)
	Status(ctx context.Context, caller *domain.User) (*service.BackendStatus, error)
	Health(ctx context.Context) bool
}

// OCRService recognises text in photos.
type OCRService interface {
	Process(ctx context.Context, input service.ProcessInput) (*service.ProcessOutput, error)
}

// StateService keeps the per-user work container.
type StateService interface {
	WorkContainer(ctx context.Context, userID int64) (string, error)
	SetWorkContainer(ctx context.Context, userID int64, containerID string) error
	ClearWorkContainer(ctx context.Context, userID int64) error
	Touch(ctx context.Context, userID int64) error
}

var (
	_ AuthService      = (*service.AuthService)(nil)
	_ ContainerService = (*service.ContainerService)(nil)
	_ FileService      = (*service.FileService)(nil)
	_ SearchService    = (*service.SearchService)(nil)
	_ OCRService       = (*service.OCRService)(nil)
	_ StateService     = (*service.StateService)(nil)
)
