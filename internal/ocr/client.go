// Package ocr is the optical character recognition client.
// Images are sent base64 encoded to an OpenAI-compatible vision endpoint.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
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

// Mode selects the instruction sent with the image.
type Mode int

const (
	// ModePlain asks for plain text without coordinate markup.
	ModePlain Mode = iota

	// ModeGrounding asks for text tagged with bounding boxes.
	ModeGrounding
)

const (
	plainInstruction     = "Free OCR. Return only the recognized text as plain text, without coordinates or markup."
	groundingInstruction = "<|grounding|>Convert the document to markdown."

	maxResponseBytes = 16 << 20
)

// OCR errors.
var (
	// ErrNotConfigured indicates no API key is set.
	ErrNotConfigured = fmt.Errorf("%w: ocr provider is not configured", domain.ErrRemoteService)

	// ErrProvider indicates the provider rejected or failed the request.
	ErrProvider = fmt.Errorf("%w: ocr provider error", domain.ErrRemoteService)

	// ErrNoText indicates the provider recognised nothing.
	ErrNoText = fmt.Errorf("%w: no text recognized", domain.ErrRemoteService)
)

// Result is the recognised text of one image.
type Result struct {
	Text string

	// Confidence is the provider's score in 0..1, zero when not reported.
	Confidence float64
}

// Client calls the OCR API. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// New creates a client.
func New(cfg config.OCRConfig, m *metrics.Metrics, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
		logger:     logger.With().Str("component", "ocr").Logger(),
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type visionMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type visionRequest struct {
	Model       string          `json:"model"`
	Messages    []visionMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Confidence *float64 `json:"confidence,omitempty"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Recognize runs OCR over image in the given mode.
func (c *Client) Recognize(ctx context.Context, image []byte, mode Mode) (_ *Result, err error) {
	defer func() { c.metrics.RecordProviderCall("ocr", err) }()

	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if len(image) == 0 {
		return nil, domain.ErrEmptyImage
	}

	instruction := plainInstruction
	if mode == ModeGrounding {
		instruction = groundingInstruction
	}

	dataURL := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
	body := visionRequest{
		Model: c.model,
		Messages: []visionMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				{Type: "text", Text: instruction},
			},
		}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("ocr request failed")
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	var out visionResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("HTTP error %d", resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrProvider, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrProvider, decodeErr)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, ErrNoText
	}

	result := &Result{Text: out.Choices[0].Message.Content}
	if out.Confidence != nil {
		result.Confidence = *out.Confidence
	}

	c.logger.Debug().
		Int("chars", len(result.Text)).
		Bool("grounding", mode == ModeGrounding).
		Dur("duration", time.Since(start)).
		Msg("ocr completed")

	return result, nil
}
