package handler

import (
	"context"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/pkg/result"
	"github.com/prn-tf/owl-middleware/internal/service"
)

// userStore counts lookups so tests can assert the store stayed untouched.
type userStore struct {
	users map[int64]*domain.User
	gets  atomic.Int32
}

func (s *userStore) GetByID(_ context.Context, id int64) (*domain.User, error) {
	s.gets.Add(1)
	return s.users[id], nil
}

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) RegisterEmail(ctx context.Context, input service.RegisterEmailInput) (*service.SessionOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*service.SessionOutput)
	return out, args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*service.SessionOutput, error) {
	args := m.Called(ctx, email, password)
	out, _ := args.Get(0).(*service.SessionOutput)
	return out, args.Error(1)
}

func (m *mockAuthService) Me(ctx context.Context, caller *domain.User) (*domain.User, error) {
	args := m.Called(ctx, caller)
	out, _ := args.Get(0).(*domain.User)
	return out, args.Error(1)
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

func (m *mockContainerService) Delete(ctx context.Context, caller *domain.User, id string) error {
	return m.Called(ctx, caller, id).Error(0)
}

func (m *mockContainerService) CheckLimits(ctx context.Context, id string) (*domain.Limits, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*domain.Limits)
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

func (m *mockFileService) Delete(ctx context.Context, caller *domain.User, containerID, fileID string) error {
	return m.Called(ctx, caller, containerID, fileID).Error(0)
}

func (m *mockFileService) List(ctx context.Context, caller *domain.User, containerID string) ([]*service.FileView, error) {
	args := m.Called(ctx, caller, containerID)
	out, _ := args.Get(0).([]*service.FileView)
	return out, args.Error(1)
}

type mockChatService struct{ mock.Mock }

func (m *mockChatService) Chat(ctx context.Context, input service.ChatInput) (*service.ChatOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*service.ChatOutput)
	return out, args.Error(1)
}

func (m *mockChatService) BatchProcess(ctx context.Context, inputs []service.ChatInput) []result.Result[*service.ChatOutput] {
	args := m.Called(ctx, inputs)
	out, _ := args.Get(0).([]result.Result[*service.ChatOutput])
	return out
}

func (m *mockChatService) Summarize(ctx context.Context, caller *domain.User, text string, maxLength int) (*service.SummaryOutput, error) {
	args := m.Called(ctx, caller, text, maxLength)
	out, _ := args.Get(0).(*service.SummaryOutput)
	return out, args.Error(1)
}

type mockOCRService struct{ mock.Mock }

func (m *mockOCRService) Process(ctx context.Context, input service.ProcessInput) (*service.ProcessOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*service.ProcessOutput)
	return out, args.Error(1)
}
