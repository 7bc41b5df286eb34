package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/mock"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/service"
)

// fakeAPI records everything the bot sends.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return "https://files.invalid/" + fileID, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// messages returns the sent text messages.
func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeAPI) lastText() string {
	msgs := f.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

func (f *fakeAPI) all() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

// mapFetcher serves files from memory.
type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, fileID string) ([]byte, error) {
	data, ok := m[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: no file %s", domain.ErrRemoteService, fileID)
	}
	return data, nil
}

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) ResolveTelegramUser(ctx context.Context, profile service.TelegramProfile) (*domain.User, error) {
	args := m.Called(ctx, profile)
	out, _ := args.Get(0).(*domain.User)
	return out, args.Error(1)
}

func (m *mockAuthService) RegisterTelegram(ctx context.Context, profile service.TelegramProfile) (*domain.User, error) {
	args := m.Called(ctx, profile)
	out, _ := args.Get(0).(*domain.User)
	return out, args.Error(1)
}

func (m *mockAuthService) IssueToken(user *domain.User) (string, error) {
	args := m.Called(user)
	return args.String(0), args.Error(1)
}

type mockContainerService struct{ mock.Mock }

func (m *mockContainerService) Create(ctx context.Context, input service.CreateContainerInput) (*service.CreateContainerOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*service.CreateContainerOutput)
	return out, args.Error(1)
}

func (m *mockContainerService) Get(ctx context.Context, caller *domain.User, id string) (*domain.Container, error) {
	args := m.Called(ctx, caller, id)
	out, _ := args.Get(0).(*domain.Container)
	return out, args.Error(1)
}

func (m *mockContainerService) List(ctx context.Context, caller *domain.User) ([]*domain.Container, error) {
	args := m.Called(ctx, caller)
	out, _ := args.Get(0).([]*domain.Container)
	return out, args.Error(1)
}

func (m *mockContainerService) Resolve(ctx context.Context, caller *domain.User, preferredID string) (*domain.Container, error) {
	args := m.Called(ctx, caller, preferredID)
	out, _ := args.Get(0).(*domain.Container)
	return out, args.Error(1)
}

type mockFileService struct{ mock.Mock }

func (m *mockFileService) Upload(ctx context.Context, input service.UploadInput) (*service.UploadOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*service.UploadOutput)
	return out, args.Error(1)
}

func (m *mockFileService) Read(ctx context.Context, caller *domain.User, containerID, fileID string) (*service.Content, error) {
	args := m.Called(ctx, caller, containerID, fileID)
	out, _ := args.Get(0).(*service.Content)
	return out, args.Error(1)
}

func (m *mockFileService) Download(ctx context.Context, caller *domain.User, fileID, containerID string) (*service.Download, error) {
	args := m.Called(ctx, caller, fileID, containerID)
	out, _ := args.Get(0).(*service.Download)
	return out, args.Error(1)
}

func (m *mockFileService) Delete(ctx context.Context, caller *domain.User, containerID, fileID string) error {
	return m.Called(ctx, caller, containerID, fileID).Error(0)
}

func (m *mockFileService) List(ctx context.Context, caller *domain.User, containerID string) ([]*service.FileView, error) {
	args := m.Called(ctx, caller, containerID)
	out, _ := args.Get(0).([]*service.FileView)
	return out, args.Error(1)
}

func (m *mockFileService) ListForUser(ctx context.Context, caller *domain.User) ([]*domain.File, error) {
	args := m.Called(ctx, caller)
	out, _ := args.Get(0).([]*domain.File)
	return out, args.Error(1)
}

type mockSearchService struct{ mock.Mock }

func (m *mockSearchService) Search(ctx context.Context, caller *domain.User, containerID, query string, limit int) (*service.SearchOutput, error) {
	args := m.Called(ctx, caller, containerID, query, limit)
	out, _ := args.Get(0).(*service.SearchOutput)
	return out, args.Error(1)
}

func (m *mockSearchService) RebuildIndex(ctx context.Context, caller *domain.User) (string, error) {
	args := m.Called(ctx, caller)
	return args.String(0), args.Error(1)
}

func (m *mockSearchService) Status(ctx context.Context, caller *domain.User) (*service.BackendStatus, error) {
	args := m.Called(ctx, caller)
	out, _ := args.Get(0).(*service.BackendStatus)
	return out, args.Error(1)
}

func (m *mockSearchService) Health(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

type mockOCRService struct{ mock.Mock }

func (m *mockOCRService) Process(ctx context.Context, input service.ProcessInput) (*service.ProcessOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*service.ProcessOutput)
	return out, args.Error(1)
}
