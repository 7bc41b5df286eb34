package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.LLMConfig{
		BaseURL:        srv.URL,
		APIKey:         "key",
		Provider:       "mistral",
		PrimaryModel:   "large",
		SecondaryModel: "small",
		Temperature:    0.7,
	}, nil, zerolog.Nop())
}

func TestComplete(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"large-2","choices":[{"message":{"role":"assistant","content":"42"}}],"usage":{"total_tokens":17}}`))
	})

	out, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", out.Content)
	assert.Equal(t, "large-2", out.Model)
	assert.Equal(t, 17, out.TokensUsed)

	assert.Equal(t, "large", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.Len(t, got.Messages, 2)
}

func TestModelFor(t *testing.T) {
	c := New(config.LLMConfig{PrimaryModel: "large", SecondaryModel: "small"}, nil, zerolog.Nop())
	assert.Equal(t, "small", c.ModelFor(1))
	assert.Equal(t, "large", c.ModelFor(0))
	assert.Equal(t, "large", c.ModelFor(7))
}

func TestCompleteErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		c := New(config.LLMConfig{BaseURL: "http://example.invalid"}, nil, zerolog.Nop())
		_, err := c.Complete(context.Background(), CompletionRequest{})
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.ErrorIs(t, err, domain.ErrRemoteService)
	})

	t.Run("provider error message", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
		})
		_, err := c.Complete(context.Background(), CompletionRequest{})
		assert.ErrorIs(t, err, ErrProvider)
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("no choices", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		})
		_, err := c.Complete(context.Background(), CompletionRequest{})
		assert.ErrorIs(t, err, ErrEmptyCompletion)
	})
}
