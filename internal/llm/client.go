// Package llm is the chat-completion client used by the chat service.
// It speaks the OpenAI-compatible /chat/completions protocol that Mistral and
// most hosted providers expose.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/metrics"
)

// Roles of chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SecondaryModelFlag selects the secondary model in ModelFor.
const SecondaryModelFlag = 1

const maxResponseBytes = 8 << 20

// LLM errors.
var (
	// ErrNotConfigured indicates no API key is set.
	ErrNotConfigured = fmt.Errorf("%w: llm provider is not configured", domain.ErrRemoteService)

	// ErrProvider indicates the provider rejected or failed the request.
	ErrProvider = fmt.Errorf("%w: llm provider error", domain.ErrRemoteService)

	// ErrEmptyCompletion indicates a response without choices.
	ErrEmptyCompletion = fmt.Errorf("%w: llm returned no answer", domain.ErrRemoteService)
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a chat completion call.
type CompletionRequest struct {
	// Model overrides the primary model when set.
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Completion is the provider's answer.
type Completion struct {
	Content    string
	Model      string
	TokensUsed int
}

// Client calls the chat completion API. Safe for concurrent use.
type Client struct {
	baseURL        string
	apiKey         string
	provider       string
	primaryModel   string
	secondaryModel string
	temperature    float64

	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// New creates a client.
func New(cfg config.LLMConfig, m *metrics.Metrics, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "llm"
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		provider:       provider,
		primaryModel:   cfg.PrimaryModel,
		secondaryModel: cfg.SecondaryModel,
		temperature:    cfg.Temperature,
		httpClient:     &http.Client{Timeout: timeout},
		metrics:        m,
		logger:         logger.With().Str("component", "llm").Str("provider", provider).Logger(),
	}
}

// ModelFor maps the caller's model flag onto a model name.
func (c *Client) ModelFor(flag int) string {
	if flag == SecondaryModelFlag && c.secondaryModel != "" {
		return c.secondaryModel
	}
	return c.primaryModel
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the conversation and returns the first choice.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (_ *Completion, err error) {
	defer func() { c.metrics.RecordProviderCall(c.provider, err) }()

	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: c.temperature,
		MaxTokens:   req.MaxTokens,
	}
	if body.Model == "" {
		body.Model = c.primaryModel
	}
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn().Err(err).Msg("llm request failed")
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	var out chatResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("HTTP error %d", resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("error", msg).Msg("llm provider rejected request")
		return nil, fmt.Errorf("%w: %s", ErrProvider, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrProvider, decodeErr)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	model := out.Model
	if model == "" {
		model = body.Model
	}

	c.logger.Debug().
		Str("model", model).
		Int("tokens", out.Usage.TotalTokens).
		Dur("duration", time.Since(start)).
		Msg("llm completion")

	return &Completion{
		Content:    out.Choices[0].Message.Content,
		Model:      model,
		TokensUsed: out.Usage.TotalTokens,
	}, nil
}
