// Package backend is the HTTP client of the remote container, file and search
// service. It translates calls into requests and HTTP statuses into the
// outcome sentinels of errors.go. It never retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/metrics"
)

// Default timeouts.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 64 << 20

// Client calls the remote backend. Safe for concurrent use.
type Client struct {
	baseURL       string
	timeout       time.Duration
	healthTimeout time.Duration
	maxIdleConns  int

	once       sync.Once
	httpClient *http.Client

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a client. The underlying connection pool is created on first use.
func New(cfg config.BackendConfig, m *metrics.Metrics, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = DefaultHealthTimeout
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		timeout:       timeout,
		healthTimeout: healthTimeout,
		maxIdleConns:  cfg.MaxIdleConns,
		metrics:       m,
		logger:        logger.With().Str("component", "backend").Logger(),
	}
}

// client returns the shared http.Client, creating it once.
func (c *Client) client() *http.Client {
	c.once.Do(func() {
		idle := c.maxIdleConns
		if idle <= 0 {
			idle = 16
		}
		c.httpClient = &http.Client{
			Timeout: c.timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        idle,
				MaxIdleConnsPerHost: idle,
				IdleConnTimeout:     90 * time.Second,
			},
		}
		c.logger.Debug().Str("base_url", c.baseURL).Dur("timeout", c.timeout).Msg("backend client initialised")
	})
	return c.httpClient
}

// =============================================================================
// Containers
// =============================================================================

// CreateContainer materialises a container on the backend.
func (c *Client) CreateContainer(ctx context.Context, req CreateContainerRequest) (*ContainerResponse, error) {
	var out ContainerResponse
	if err := c.do(ctx, "create_container", http.MethodPost, "/containers/create", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteContainer removes a container from the backend.
func (c *Client) DeleteContainer(ctx context.Context, userID int64, containerID string) error {
	body := containerRef{UserID: userID, ContainerID: containerID}
	return c.do(ctx, "delete_container", http.MethodPost, "/containers/delete", nil, body, nil)
}

// =============================================================================
// Files
// =============================================================================

// CreateFile writes content at req.Path.
func (c *Client) CreateFile(ctx context.Context, req CreateFileRequest) (*FileResponse, error) {
	var out FileResponse
	if err := c.do(ctx, "create_file", http.MethodPost, "/files/create", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadFile fetches the content stored at path.
func (c *Client) ReadFile(ctx context.Context, path string, userID int64, containerID string) (*FileResponse, error) {
	q := url.Values{}
	q.Set("path", path)
	q.Set("user_id", strconv.FormatInt(userID, 10))
	q.Set("container_id", containerID)

	var out FileResponse
	if err := c.do(ctx, "read_file", http.MethodGet, "/files/read", q, nil, &out); err != nil {
		return nil, err
	}
	if out.Path == "" {
		out.Path = path
	}
	return &out, nil
}

// DeleteFile removes the content stored at path.
func (c *Client) DeleteFile(ctx context.Context, path string, userID int64, containerID string) error {
	body := fileRef{Path: path, UserID: userID, ContainerID: containerID}
	return c.do(ctx, "delete_file", http.MethodPost, "/files/delete", nil, body, nil)
}

// =============================================================================
// Search and service status
// =============================================================================

// SemanticSearch ranks the container's files against req.Query.
func (c *Client) SemanticSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var out SearchResponse
	if err := c.do(ctx, "semantic_search", http.MethodPost, "/semantic", nil, req, &out); err != nil {
		return nil, err
	}
	if out.Count == 0 {
		out.Count = len(out.Results)
	}
	return &out, nil
}

// RebuildIndex asks the backend to rebuild its search index.
func (c *Client) RebuildIndex(ctx context.Context) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, "rebuild_index", http.MethodPost, "/rebuild", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Root returns the backend's greeting message.
func (c *Client) Root(ctx context.Context) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, "root", http.MethodGet, "/", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports whether the backend answers GET / with 200 within the health timeout.
// Transport failures are returned as errors, a non-200 status as false.
func (c *Client) Health(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", http.NoBody)
	if err != nil {
		return false, &Error{Op: "health", Message: err.Error(), Err: ErrUnavailable}
	}

	resp, err := c.client().Do(req)
	if err != nil {
		c.metrics.RecordBackendCall("health", err, time.Since(start))
		return false, &Error{Op: "health", Message: err.Error(), Err: ErrUnavailable}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	c.metrics.RecordBackendCall("health", nil, time.Since(start))
	return resp.StatusCode == http.StatusOK, nil
}

// =============================================================================
// Transport
// =============================================================================

// do performs one request. in is JSON-encoded when non-nil; out is decoded
// from either a {"data": ...} envelope or a bare object when non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordBackendCall(op, err, time.Since(start))
		if err != nil {
			c.logger.Warn().Err(err).Str("op", op).Dur("duration", time.Since(start)).Msg("backend call failed")
		}
	}()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader = http.NoBody
	if in != nil {
		payload, mErr := json.Marshal(in)
		if mErr != nil {
			return &Error{Op: op, Message: mErr.Error(), Err: ErrValidation}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &Error{Op: op, Message: err.Error(), Err: ErrUnavailable}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return &Error{Op: op, Message: err.Error(), Err: ErrUnavailable}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: err.Error(), Err: ErrUnavailable}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	default:
		return &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw, resp.StatusCode),
			Err:        sentinelFor(resp.StatusCode),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := decodeEnvelope(raw, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: err.Error(), Err: ErrDecode}
	}
	return nil
}

// decodeEnvelope accepts {"data": {...}} as well as a bare object.
func decodeEnvelope(raw []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		data := bytes.TrimSpace(envelope.Data)
		if len(data) > 0 && !bytes.Equal(data, []byte("null")) && data[0] == '{' {
			return json.Unmarshal(data, out)
		}
	}
	return json.Unmarshal(raw, out)
}

// errorMessage extracts the body's "error" field or falls back to the status.
func errorMessage(raw []byte, status int) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("HTTP error %d", status)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
