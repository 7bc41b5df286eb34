package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/owl-middleware/internal/auth"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/metrics"
	"github.com/prn-tf/owl-middleware/internal/pkg/result"
	"github.com/prn-tf/owl-middleware/internal/service"
)

const testSecret = "0123456789abcdef0123456789abcdef-test"

type gateway struct {
	handler    http.Handler
	store      *userStore
	auth       *mockAuthService
	containers *mockContainerService
	files      *mockFileService
	chat       *mockChatService
	ocr        *mockOCRService
	metrics    *metrics.Metrics
	user       *domain.User
	token      string
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	tokens, err := auth.NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	g := &gateway{
		store:      &userStore{users: map[int64]*domain.User{}},
		auth:       new(mockAuthService),
		containers: new(mockContainerService),
		files:      new(mockFileService),
		chat:       new(mockChatService),
		ocr:        new(mockOCRService),
		metrics:    metrics.New(prometheus.NewRegistry()),
		user:       domain.NewTelegramUser(42, "owl", "Olga", "", domain.LanguageEN),
	}
	g.store.users[g.user.ID] = g.user
	g.token, err = tokens.Issue(g.user)
	require.NoError(t, err)

	logger := zerolog.Nop()
	// A search service without a container store or backend: any call past
	// input validation would panic and surface as a 500.
	search := service.NewSearchService(nil, nil, logger)

	g.handler = NewRouter(RouterConfig{
		AuthHandler:      NewAuthHandler(g.auth, logger),
		ContainerHandler: NewContainerHandler(g.containers, logger),
		FileHandler:      NewFileHandler(g.files, domain.MiB, logger),
		SearchHandler:    NewSearchHandler(search, g.chat, logger),
		OCRHandler:       NewOCRHandler(g.ocr, logger),
		AuthMiddleware:   auth.Middleware(g.store, tokens, auth.Config{}),
		Metrics:          g.metrics,
		Logger:           logger,
	}).Handler()
	return g
}

// do sends an authenticated request unless token is empty.
func (g *gateway) do(method, target, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set(auth.AuthorizationHeader, auth.BearerPrefix+token)
	}
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

func (g *gateway) doJSON(method, target string, v any) *httptest.ResponseRecorder {
	var body []byte
	if v != nil {
		body, _ = json.Marshal(v)
	}
	return g.do(method, target, g.token, body, "application/json")
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	g := newGateway(t)

	rec := g.do(http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	assert.Zero(t, g.store.gets.Load())
}

func TestUnauthenticatedListTouchesNoStore(t *testing.T) {
	g := newGateway(t)

	rec := g.do(http.MethodGet, "/containers", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "error")
	assert.Zero(t, g.store.gets.Load())
	g.containers.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestInvalidToken(t *testing.T) {
	g := newGateway(t)

	rec := g.do(http.MethodGet, "/containers", "not-a-jwt", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	g.containers.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestQueryToken(t *testing.T) {
	g := newGateway(t)
	g.containers.On("List", mock.Anything, g.user).Return([]*domain.Container{}, nil)

	rec := g.do(http.MethodGet, "/containers?token="+g.token, "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListContainers(t *testing.T) {
	g := newGateway(t)
	work := domain.NewContainer("work", g.user.ID, domain.DefaultTariff())
	work.Status = domain.StatusActive
	g.containers.On("List", mock.Anything, g.user).Return([]*domain.Container{work}, nil)

	rec := g.doJSON(http.MethodGet, "/containers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "work", data[0].(map[string]any)["id"])
	assert.Equal(t, int32(1), g.store.gets.Load())
}

func TestCreateContainer(t *testing.T) {
	g := newGateway(t)
	created := domain.NewContainer("work", g.user.ID, domain.DefaultTariff())
	g.containers.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateContainerInput) bool {
		return in.Caller == g.user &&
			in.ContainerID == "work" &&
			in.Tariff.StorageQuota == 2*domain.MiB &&
			in.Tariff.MemoryLimit == domain.DefaultMemoryLimitMB &&
			in.Tariff.FileLimit == 3
	})).Return(&service.CreateContainerOutput{Container: created}, nil)

	rec := g.doJSON(http.MethodPost, "/containers", map[string]any{
		"container_id":  "work",
		"storage_quota": 2,
		"file_limit":    3,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	container := decodeBody(t, rec)["data"].(map[string]any)["container"].(map[string]any)
	assert.Equal(t, "work", container["id"])
	g.containers.AssertExpectations(t)
}

func TestCreateContainerQuotaOutOfRange(t *testing.T) {
	g := newGateway(t)

	for _, quota := range []int64{domain.MaxStorageQuotaMB + 1, 17592186044417, -17592186044415} {
		rec := g.doJSON(http.MethodPost, "/containers", map[string]any{
			"container_id":  "work",
			"storage_quota": quota,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "quota %d", quota)
	}
	g.containers.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateContainerBadJSON(t *testing.T) {
	g := newGateway(t)

	rec := g.do(http.MethodPost, "/containers", g.token, []byte("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	g.containers.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "not found", err: domain.ErrContainerNotFound, wantStatus: http.StatusNotFound, wantError: "container not found"},
		{name: "forbidden", err: domain.ErrAccessDenied, wantStatus: http.StatusForbidden},
		{name: "already exists", err: domain.ErrContainerAlreadyExists, wantStatus: http.StatusBadRequest},
		{name: "validation", err: domain.Validationf("bad id"), wantStatus: http.StatusBadRequest, wantError: "bad id"},
		{name: "remote", err: fmt.Errorf("%w: backend down", domain.ErrRemoteService), wantStatus: http.StatusInternalServerError},
		{name: "internal", err: errors.New("nil map write"), wantStatus: http.StatusInternalServerError, wantError: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t)
			g.containers.On("Get", mock.Anything, g.user, "work").Return(nil, tt.err)

			rec := g.doJSON(http.MethodGet, "/containers/work", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			body := decodeBody(t, rec)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestContainerLimitsChecksOwnershipFirst(t *testing.T) {
	g := newGateway(t)
	g.containers.On("Get", mock.Anything, g.user, "theirs").Return(nil, domain.ErrAccessDenied)

	rec := g.doJSON(http.MethodGet, "/containers/theirs/limits", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	g.containers.AssertNotCalled(t, "CheckLimits", mock.Anything, mock.Anything)
}

func TestDeleteContainer(t *testing.T) {
	g := newGateway(t)
	g.containers.On("Delete", mock.Anything, g.user, "work").Return(nil).Once()
	g.containers.On("Delete", mock.Anything, g.user, "work").Return(domain.ErrContainerNotFound)

	rec := g.doJSON(http.MethodDelete, "/containers/work", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "work")

	rec = g.doJSON(http.MethodDelete, "/containers/work", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchEmptyQuery(t *testing.T) {
	g := newGateway(t)

	rec := g.doJSON(http.MethodPost, "/search/semantic", map[string]any{"container_id": "work", "query": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrEmptyQuery.Error(), decodeBody(t, rec)["error"])
}

func multipartBody(t *testing.T, field, filename string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUploadFile(t *testing.T) {
	g := newGateway(t)
	content := []byte(strings.Repeat("owls are birds\n", 10))
	stored := domain.NewFile("f1", "work", g.user.ID, "notes.txt", int64(len(content)), "text/plain")

	g.files.On("Upload", mock.Anything, mock.MatchedBy(func(in service.UploadInput) bool {
		return in.Caller == g.user &&
			in.ContainerID == "work" &&
			in.Name == "notes.txt" &&
			in.MimeType == "text/plain" &&
			bytes.Equal(in.Content, content)
	})).Return(&service.UploadOutput{File: stored, ContainerName: "work"}, nil)

	body, contentType := multipartBody(t, UploadField, "notes.txt", content)
	rec := g.do(http.MethodPost, "/containers/work/files", g.token, body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, "work", data["container_name"])
	g.files.AssertExpectations(t)
}

func TestUploadRejections(t *testing.T) {
	t.Run("missing field", func(t *testing.T) {
		g := newGateway(t)
		body, contentType := multipartBody(t, "other", "notes.txt", []byte("x"))

		rec := g.do(http.MethodPost, "/containers/work/files", g.token, body, contentType)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		g.files.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
	})

	t.Run("quota", func(t *testing.T) {
		g := newGateway(t)
		g.files.On("Upload", mock.Anything, mock.Anything).
			Return(nil, domain.Validationf("storage quota exceeded: 24 bytes available"))
		body, contentType := multipartBody(t, UploadField, "notes.txt", []byte("hello"))

		rec := g.do(http.MethodPost, "/containers/work/files", g.token, body, contentType)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "storage quota exceeded: 24 bytes available", decodeBody(t, rec)["error"])
	})
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", detectMimeType("application/pdf", "doc.bin", nil))
	assert.Equal(t, "text/markdown", detectMimeType("text/markdown; charset=utf-8", "a.md", nil))
	assert.Equal(t, "application/pdf", detectMimeType("", "report.pdf", []byte("%PDF-1.4")))
	assert.Equal(t, "image/png", detectMimeType("application/octet-stream", "", []byte("\x89PNG\r\n\x1a\n")))
}

func TestFileRoutes(t *testing.T) {
	g := newGateway(t)
	stored := domain.NewFile("f1", "work", g.user.ID, "notes.txt", 5, "text/plain")
	g.files.On("List", mock.Anything, g.user, "work").
		Return([]*service.FileView{{File: stored, Path: "/f1", StorageError: "Not found in storage"}}, nil)
	g.files.On("Read", mock.Anything, g.user, "work", "f1").
		Return(&service.Content{FileID: "f1", Text: "hello", Encoding: "text", Size: 5, MimeType: "text/plain"}, nil)
	g.files.On("Delete", mock.Anything, g.user, "work", "f1").Return(nil)

	rec := g.doJSON(http.MethodGet, "/containers/work/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
	view := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "Not found in storage", view["storage_error"])
	assert.Equal(t, "notes.txt", view["name"])

	rec = g.doJSON(http.MethodGet, "/containers/work/files/f1/content", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	content := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "hello", content["content"])
	assert.Equal(t, "text", content["encoding"])
	assert.Equal(t, false, content["truncated"])

	rec = g.doJSON(http.MethodDelete, "/containers/work/files/f1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"success":true}}`, rec.Body.String())
}

func TestDeleteFileScopedToContainer(t *testing.T) {
	g := newGateway(t)
	g.files.On("Delete", mock.Anything, g.user, "elsewhere", "f1").Return(domain.ErrFileNotFound)

	rec := g.doJSON(http.MethodDelete, "/containers/elsewhere/files/f1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	g.files.AssertCalled(t, "Delete", mock.Anything, g.user, "elsewhere", "f1")
	g.files.AssertNotCalled(t, "Delete", mock.Anything, g.user, "work", "f1")
}

func TestChat(t *testing.T) {
	g := newGateway(t)
	g.chat.On("Chat", mock.Anything, mock.MatchedBy(func(in service.ChatInput) bool {
		return in.Caller == g.user && in.ContainerID == "work" && in.Query == "when?" && in.ModelFlag == 1
	})).Return(&service.ChatOutput{Answer: "At night.", Model: "small", UsedFiles: []service.UsedFile{}}, nil)

	rec := g.doJSON(http.MethodPost, "/chat", map[string]any{"container_id": "work", "query": "when?", "model": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "At night.", data["answer"])
	assert.Equal(t, "small", data["model"])
}

func TestChatBatch(t *testing.T) {
	g := newGateway(t)
	g.chat.On("BatchProcess", mock.Anything, mock.MatchedBy(func(in []service.ChatInput) bool {
		return len(in) == 2 && in[0].Caller == g.user && in[1].Query == "who?"
	})).Return([]result.Result[*service.ChatOutput]{
		result.Ok(&service.ChatOutput{Answer: "At night.", UsedFiles: []service.UsedFile{}}),
		result.Err[*service.ChatOutput](errors.New("database exploded")),
	})

	rec := g.doJSON(http.MethodPost, "/chat/batch", map[string]any{"requests": []map[string]any{
		{"container_id": "work", "query": "when?"},
		{"container_id": "work", "query": "who?"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	items := body["data"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "At night.", items[0].(map[string]any)["data"].(map[string]any)["answer"])
	assert.Equal(t, "internal server error", items[1].(map[string]any)["error"])

	rec = g.doJSON(http.MethodPost, "/chat/batch", map[string]any{"requests": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummarize(t *testing.T) {
	g := newGateway(t)
	g.chat.On("Summarize", mock.Anything, g.user, "long text", 100).
		Return(&service.SummaryOutput{Summary: "short", Model: "small"}, nil)

	rec := g.doJSON(http.MethodPost, "/summarize", map[string]any{"text": "long text", "max_length": 100})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "short", decodeBody(t, rec)["data"].(map[string]any)["summary"])
}

func TestSummarizeWithoutProvider(t *testing.T) {
	g := newGateway(t)
	g.chat.On("Summarize", mock.Anything, g.user, "long text", 0).Return(nil, service.ErrChatUnavailable)

	rec := g.doJSON(http.MethodPost, "/summarize", map[string]any{"text": "long text"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "chat is not available")
}

func TestOCRProcess(t *testing.T) {
	g := newGateway(t)
	image := []byte("fake image")
	g.ocr.On("Process", mock.Anything, mock.MatchedBy(func(in service.ProcessInput) bool {
		return bytes.Equal(in.Image, image) && in.Visualize
	})).Return(&service.ProcessOutput{Text: "hello", Confidence: 0.9, BoxesCount: 2, Visualization: []byte("jpeg")}, nil)

	rec := g.doJSON(http.MethodPost, "/ocr/process", map[string]any{
		"image":     "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
		"visualize": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "hello", data["text"])
	assert.Equal(t, float64(2), data["boxes_count"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg")), data["visualization"])

	rec = g.doJSON(http.MethodPost, "/ocr/process", map[string]any{"image": "***"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.doJSON(http.MethodPost, "/ocr/process", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRoutes(t *testing.T) {
	g := newGateway(t)
	session := &service.SessionOutput{User: g.user, Token: "tok"}
	g.auth.On("RegisterEmail", mock.Anything, service.RegisterEmailInput{Email: "owl@example.com", Password: "hunter22"}).
		Return(session, nil)
	g.auth.On("Login", mock.Anything, "owl@example.com", "wrong").Return(nil, domain.ErrInvalidCredentials)
	g.auth.On("Me", mock.Anything, g.user).Return(g.user, nil)

	rec := g.do(http.MethodPost, "/auth/register", "",
		[]byte(`{"email":"owl@example.com","password":"hunter22"}`), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "tok", decodeBody(t, rec)["data"].(map[string]any)["token"])

	rec = g.do(http.MethodPost, "/auth/login", "",
		[]byte(`{"email":"owl@example.com","password":"wrong"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = g.doJSON(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody(t, rec)["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, float64(42), user["id"])
}

func TestRecovererAndMetrics(t *testing.T) {
	g := newGateway(t)
	g.containers.On("Get", mock.Anything, g.user, "boom").Run(func(mock.Arguments) {
		panic("unexpected")
	})

	rec := g.doJSON(http.MethodGet, "/containers/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())

	assert.Equal(t, 1.0, testutil.ToFloat64(
		g.metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/containers/{id}", "500")))
}

func TestUnknownRoute(t *testing.T) {
	g := newGateway(t)

	rec := g.do(http.MethodGet, "/nope", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"route not found"}`, rec.Body.String())
}
