package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/auth"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/llm"
	"github.com/prn-tf/owl-middleware/internal/service"
)

// SearchHandler serves semantic search and chat over a container's files.
type SearchHandler struct {
	searchService SearchService
	chatService   ChatService
	logger        zerolog.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searchService SearchService, chatService ChatService, logger zerolog.Logger) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		chatService:   chatService,
		logger:        logger.With().Str("handler", "search").Logger(),
	}
}

type searchRequest struct {
	ContainerID string `json:"container_id"`
	Query       string `json:"query"`
	Limit       int    `json:"limit"`
}

type chatRequest struct {
	ContainerID string        `json:"container_id"`
	Query       string        `json:"query"`
	History     []llm.Message `json:"conversation_history"`

	// Model 1 selects the secondary model.
	Model    int `json:"model"`
	MaxFiles int `json:"max_files"`
}

// maxBatchSize caps the questions of one /chat/batch request.
const maxBatchSize = 20

type batchRequest struct {
	Requests []chatRequest `json:"requests"`
}

// batchItem is one answer of a batch; exactly one field is set.
type batchItem struct {
	Data  *service.ChatOutput `json:"data,omitempty"`
	Error string              `json:"error,omitempty"`
}

type summarizeRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"max_length"`
}

// RegisterRoutes registers search and chat routes.
func (h *SearchHandler) RegisterRoutes(r chi.Router) {
	r.Post("/search/semantic", h.handleSearch)
	r.Post("/chat", h.handleChat)
	r.Post("/chat/batch", h.handleBatch)
	r.Post("/summarize", h.handleSummarize)
}

func (h *SearchHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out, err := h.searchService.Search(r.Context(), caller, req.ContainerID, req.Query, req.Limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, out)
}

func (h *SearchHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out, err := h.chatService.Chat(r.Context(), req.input(caller))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, out)
}

func (req chatRequest) input(caller *domain.User) service.ChatInput {
	return service.ChatInput{
		Caller:      caller,
		ContainerID: req.ContainerID,
		Query:       req.Query,
		History:     req.History,
		ModelFlag:   req.Model,
		MaxFiles:    req.MaxFiles,
	}
}

func (h *SearchHandler) handleBatch(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if len(req.Requests) == 0 || len(req.Requests) > maxBatchSize {
		writeError(w, r, h.logger, domain.Validationf("requests must hold 1 to %d questions", maxBatchSize))
		return
	}

	inputs := make([]service.ChatInput, len(req.Requests))
	for i, q := range req.Requests {
		inputs[i] = q.input(caller)
	}

	results := h.chatService.BatchProcess(r.Context(), inputs)
	items := make([]batchItem, len(results))
	for i, res := range results {
		out, err := res.Unwrap()
		if err != nil {
			items[i].Error = publicMessage(err)
			if domain.Class(err) == domain.ErrInternal {
				h.logger.Error().Err(err).Int("index", i).Msg("batch question failed")
			}
			continue
		}
		items[i].Data = out
	}

	writeList(w, items, len(items))
}

func (h *SearchHandler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireUser(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req summarizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out, err := h.chatService.Summarize(r.Context(), caller, req.Text, req.MaxLength)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, out)
}
