package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/prn-tf/owl-middleware/internal/backend"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/llm"
	"github.com/prn-tf/owl-middleware/internal/ocr"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// =============================================================================
// Mock Repositories
// =============================================================================

// MockUserRepository is a map-backed repository.UserRepository.
type MockUserRepository struct {
	users     map[int64]*domain.User
	createErr error
	getErr    error
	gets      int
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[int64]*domain.User)}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.users[user.ID]; exists {
		return repository.ErrAlreadyExists
	}
	for _, u := range m.users {
		if user.TelegramID != nil && u.TelegramID != nil && *u.TelegramID == *user.TelegramID {
			return repository.ErrAlreadyExists
		}
		if user.Email != nil && u.Email != nil && *u.Email == *user.Email {
			return repository.ErrAlreadyExists
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.users[id], nil
}

func (m *MockUserRepository) GetByTelegramID(ctx context.Context, tgID int64) (*domain.User, error) {
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.TelegramID != nil && *u.TelegramID == tgID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.Email != nil && *u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *MockUserRepository) Update(ctx context.Context, id int64, patch domain.UserPatch) (bool, error) {
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	if patch.IsAdmin != nil {
		u.IsAdmin = *patch.IsAdmin
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	if patch.Language != nil {
		u.Language = *patch.Language
	}
	return true, nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id int64) (bool, error) {
	_, ok := m.users[id]
	delete(m.users, id)
	return ok, nil
}

func (m *MockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	var out []*domain.User
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MockContainerRepository is a map-backed repository.ContainerRepository.
type MockContainerRepository struct {
	containers map[string]*domain.Container
	createErr  error
	deleteErr  error
	creates    int
}

func NewMockContainerRepository() *MockContainerRepository {
	return &MockContainerRepository{containers: make(map[string]*domain.Container)}
}

func (m *MockContainerRepository) Create(ctx context.Context, c *domain.Container) error {
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.containers[c.ID]; exists {
		return repository.ErrAlreadyExists
	}
	stored := *c
	m.containers[c.ID] = &stored
	return nil
}

func (m *MockContainerRepository) GetByID(ctx context.Context, id string) (*domain.Container, error) {
	c, ok := m.containers[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (m *MockContainerRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Container, error) {
	var out []*domain.Container
	for _, c := range m.containers {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockContainerRepository) SetStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	c, ok := m.containers[id]
	if !ok {
		return false, nil
	}
	c.Status = status
	return true, nil
}

func (m *MockContainerRepository) ListPendingBefore(ctx context.Context, t time.Time) ([]*domain.Container, error) {
	var out []*domain.Container
	for _, c := range m.containers {
		if c.Status == domain.StatusPending && c.CreatedAt.Before(t) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockContainerRepository) Delete(ctx context.Context, id string) (bool, error) {
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	_, ok := m.containers[id]
	delete(m.containers, id)
	return ok, nil
}

// MockFileRepository is a map-backed repository.FileRepository.
type MockFileRepository struct {
	files     map[string]*domain.File
	createErr error
	deleteErr error
}

func NewMockFileRepository() *MockFileRepository {
	return &MockFileRepository{files: make(map[string]*domain.File)}
}

func (m *MockFileRepository) Create(ctx context.Context, f *domain.File) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.files[f.ID]; exists {
		return repository.ErrAlreadyExists
	}
	stored := *f
	m.files[f.ID] = &stored
	return nil
}

func (m *MockFileRepository) GetByID(ctx context.Context, id string) (*domain.File, error) {
	f, ok := m.files[id]
	if !ok {
		return nil, nil
	}
	out := *f
	return &out, nil
}

func (m *MockFileRepository) ListByContainer(ctx context.Context, containerID string) ([]*domain.File, error) {
	var out []*domain.File
	for _, f := range m.files {
		if f.ContainerID == containerID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockFileRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.File, error) {
	var out []*domain.File
	for _, f := range m.files {
		if f.UserID == userID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockFileRepository) SetStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	f, ok := m.files[id]
	if !ok {
		return false, nil
	}
	f.Status = status
	return true, nil
}

func (m *MockFileRepository) ListPendingBefore(ctx context.Context, t time.Time) ([]*domain.File, error) {
	var out []*domain.File
	for _, f := range m.files {
		if f.Status == domain.StatusPending && f.CreatedAt.Before(t) {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockFileRepository) UsageByContainer(ctx context.Context, containerID string) (int64, int64, error) {
	var size, count int64
	for _, f := range m.files {
		if f.ContainerID == containerID {
			size += f.Size
			count++
		}
	}
	return size, count, nil
}

func (m *MockFileRepository) Delete(ctx context.Context, id string) (bool, error) {
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	_, ok := m.files[id]
	delete(m.files, id)
	return ok, nil
}

// =============================================================================
// Fake Backend
// =============================================================================

// fakeBackend is an in-memory RemoteBackend that counts calls.
type fakeBackend struct {
	mu         sync.Mutex
	containers map[string]bool
	files      map[string]string // container id + path -> content
	calls      map[string]int

	createContainerErr error
	deleteContainerErr error
	createFileErr      error
	deleteFileErr      error
	searchErr          error
	rootErr            error

	searchResults []backend.SearchResult
	lastSearch    backend.SearchRequest
	healthy       bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		containers: make(map[string]bool),
		files:      make(map[string]string),
		calls:      make(map[string]int),
		healthy:    true,
	}
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) record(op string) {
	f.calls[op]++
}

func (f *fakeBackend) CreateContainer(ctx context.Context, req backend.CreateContainerRequest) (*backend.ContainerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_container")
	if f.createContainerErr != nil {
		return nil, f.createContainerErr
	}
	f.containers[req.ContainerID] = true
	return &backend.ContainerResponse{ContainerID: req.ContainerID, Status: "created"}, nil
}

func (f *fakeBackend) DeleteContainer(ctx context.Context, userID int64, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete_container")
	if f.deleteContainerErr != nil {
		return f.deleteContainerErr
	}
	if !f.containers[containerID] {
		return &backend.Error{Op: "delete_container", StatusCode: 404, Message: "HTTP error 404", Err: backend.ErrNotFound}
	}
	delete(f.containers, containerID)
	return nil
}

func (f *fakeBackend) CreateFile(ctx context.Context, req backend.CreateFileRequest) (*backend.FileResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_file")
	if f.createFileErr != nil {
		return nil, f.createFileErr
	}
	f.files[req.ContainerID+req.Path] = req.Content
	return &backend.FileResponse{Path: req.Path, Size: int64(len(req.Content)), Created: true}, nil
}

func (f *fakeBackend) ReadFile(ctx context.Context, path string, userID int64, containerID string) (*backend.FileResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("read_file")
	content, ok := f.files[containerID+path]
	if !ok {
		return nil, &backend.Error{Op: "read_file", StatusCode: 404, Message: "HTTP error 404", Err: backend.ErrNotFound}
	}
	return &backend.FileResponse{Path: path, Content: content, Size: int64(len(content))}, nil
}

func (f *fakeBackend) DeleteFile(ctx context.Context, path string, userID int64, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete_file")
	if f.deleteFileErr != nil {
		return f.deleteFileErr
	}
	if _, ok := f.files[containerID+path]; !ok {
		return &backend.Error{Op: "delete_file", StatusCode: 404, Message: "HTTP error 404", Err: backend.ErrNotFound}
	}
	delete(f.files, containerID+path)
	return nil
}

func (f *fakeBackend) SemanticSearch(ctx context.Context, req backend.SearchRequest) (*backend.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("semantic_search")
	f.lastSearch = req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	results := f.searchResults
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return &backend.SearchResponse{Query: req.Query, Results: results, Count: len(results)}, nil
}

func (f *fakeBackend) RebuildIndex(ctx context.Context) (*backend.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("rebuild_index")
	return &backend.MessageResponse{Message: "index rebuilt"}, nil
}

func (f *fakeBackend) Root(ctx context.Context) (*backend.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("root")
	if f.rootErr != nil {
		return nil, f.rootErr
	}
	return &backend.MessageResponse{Message: "owl storage v1"}, nil
}

func (f *fakeBackend) Health(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("health")
	return f.healthy, nil
}

func serviceError(op string, status int) error {
	return &backend.Error{Op: op, StatusCode: status, Message: "HTTP error 500", Err: backend.ErrService}
}

// =============================================================================
// Provider Mocks
// =============================================================================

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Completion), args.Error(1)
}

func (m *mockCompleter) ModelFor(flag int) string {
	if flag == llm.SecondaryModelFlag {
		return "small"
	}
	return "large"
}

type mockRecognizer struct {
	mock.Mock
}

func (m *mockRecognizer) Recognize(ctx context.Context, image []byte, mode ocr.Mode) (*ocr.Result, error) {
	args := m.Called(ctx, image, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ocr.Result), args.Error(1)
}

// =============================================================================
// Fixtures
// =============================================================================

func testUser(id int64) *domain.User {
	return domain.NewTelegramUser(id, "user", "Test", "", domain.LanguageEN)
}

func activeContainer(repo *MockContainerRepository, remote *fakeBackend, id string, ownerID int64, tariff domain.Tariff) *domain.Container {
	c := domain.NewContainer(id, ownerID, tariff)
	c.Status = domain.StatusActive
	repo.containers[id] = c
	if remote != nil {
		remote.containers[id] = true
	}
	return c
}
