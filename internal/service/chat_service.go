package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/backend"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/llm"
	"github.com/prn-tf/owl-middleware/internal/pkg/result"
	"github.com/prn-tf/owl-middleware/internal/repository"
	"github.com/prn-tf/owl-middleware/internal/transform"
)

// Prompt bounds, in characters.
const (
	MaxSnippetLength = 2000
	MaxContextLength = 12000

	// MaxHistoryMessages caps the conversation sent to the model and handed
	// back to the caller.
	MaxHistoryMessages = 10

	DefaultSummaryLength = 500

	defaultChatFiles = 5
	batchConcurrency = 4
)

const defaultSystemPrompt = "You are a helpful AI assistant. Answer using the provided file context."

// ChatConfig contains chat service settings.
type ChatConfig struct {
	SystemPrompt    string
	MaxContextFiles int
}

// ChatService answers questions over a container's files (retrieval
// augmented generation): search, fetch, build a bounded context, complete.
type ChatService struct {
	search        *SearchService
	containerRepo repository.ContainerRepository
	fileRepo      repository.FileRepository
	backend       RemoteBackend
	completer     Completer
	config        ChatConfig
	logger        zerolog.Logger
}

// NewChatService creates a new ChatService. completer may be nil when no
// provider is configured; chat calls then fail with ErrChatUnavailable.
func NewChatService(
	search *SearchService,
	containerRepo repository.ContainerRepository,
	fileRepo repository.FileRepository,
	remote RemoteBackend,
	completer Completer,
	config ChatConfig,
	logger zerolog.Logger,
) *ChatService {
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSystemPrompt
	}
	if config.MaxContextFiles <= 0 {
		config.MaxContextFiles = defaultChatFiles
	}
	return &ChatService{
		search:        search,
		containerRepo: containerRepo,
		fileRepo:      fileRepo,
		backend:       remote,
		completer:     completer,
		config:        config,
		logger:        logger.With().Str("service", "chat").Logger(),
	}
}

// =============================================================================
// Input/Output Types
// =============================================================================

// ChatInput is one question about a container.
type ChatInput struct {
	Caller      *domain.User
	ContainerID string
	Query       string
	History     []llm.Message

	// ModelFlag 1 selects the secondary model.
	ModelFlag int

	// MaxFiles caps the search hits pulled into the prompt.
	MaxFiles int
}

// UsedFile is a file whose content went into the prompt.
type UsedFile struct {
	Path  string  `json:"path"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ChatMetadata describes how an answer was produced.
type ChatMetadata struct {
	FilesConsidered int `json:"files_considered"`
	FilesUsed       int `json:"files_used"`
	TokensUsed      int `json:"tokens_used"`
}

// ChatOutput is the answer and the updated conversation.
type ChatOutput struct {
	Answer              string        `json:"answer"`
	UsedFiles           []UsedFile    `json:"used_files"`
	ConversationHistory []llm.Message `json:"conversation_history"`
	Model               string        `json:"model"`
	Metadata            ChatMetadata  `json:"metadata"`
}

// SummaryOutput is a generated summary.
type SummaryOutput struct {
	Summary    string `json:"summary"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

// =============================================================================
// Service Methods
// =============================================================================

// Chat answers input.Query using the most relevant files of the container.
func (s *ChatService) Chat(ctx context.Context, input ChatInput) (*ChatOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if s.completer == nil {
		return nil, ErrChatUnavailable
	}

	maxFiles := input.MaxFiles
	if maxFiles <= 0 || maxFiles > s.config.MaxContextFiles {
		maxFiles = s.config.MaxContextFiles
	}

	container, err := loadContainer(ctx, s.containerRepo, s.logger, input.Caller, input.ContainerID)
	if err != nil {
		return nil, err
	}

	found, err := s.search.Search(ctx, input.Caller, container.ID, input.Query, maxFiles)
	if err != nil {
		return nil, err
	}
	hits := found.Results

	reads := result.Gather(ctx, len(hits), maxFiles, func(ctx context.Context, i int) (*backend.FileResponse, error) {
		return s.backend.ReadFile(ctx, hits[i].Path, container.UserID, container.ID)
	})

	var (
		sb    strings.Builder
		total int
		used  []UsedFile
	)
	for i, hit := range hits {
		resp, err := reads[i].Unwrap()
		if err != nil {
			s.logger.Debug().Err(err).Str("path", hit.Path).Msg("skipping unreadable search hit")
			continue
		}
		name := s.displayName(ctx, hit.Path)
		text, ok := promptText(resp.Content)
		if !ok {
			continue
		}

		snippet, _ := transform.Truncate(text, MaxSnippetLength)
		block := fmt.Sprintf("### %s (%s)\n%s\n\n", name, hit.Path, snippet)
		n := utf8.RuneCountInString(block)
		if total+n > MaxContextLength {
			break
		}
		sb.WriteString(block)
		total += n
		used = append(used, UsedFile{Path: hit.Path, Name: name, Score: hit.Score})
	}

	system := s.config.SystemPrompt
	if sb.Len() > 0 {
		system += "\n\nFile context:\n\n" + sb.String()
	} else {
		system += "\n\nNo relevant files were found in the container."
	}

	prior := input.History
	if len(prior) > MaxHistoryMessages {
		prior = prior[len(prior)-MaxHistoryMessages:]
	}

	messages := make([]llm.Message, 0, len(prior)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, prior...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input.Query})

	completion, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Model:    s.completer.ModelFor(input.ModelFlag),
		Messages: messages,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("container_id", input.ContainerID).Msg("chat completion failed")
		return nil, err
	}

	history := make([]llm.Message, 0, len(prior)+2)
	history = append(history, prior...)
	history = append(history,
		llm.Message{Role: llm.RoleUser, Content: input.Query},
		llm.Message{Role: llm.RoleAssistant, Content: completion.Content},
	)
	if len(history) > MaxHistoryMessages {
		history = history[len(history)-MaxHistoryMessages:]
	}

	s.logger.Info().
		Str("container_id", input.ContainerID).
		Str("model", completion.Model).
		Int("files_considered", len(hits)).
		Int("files_used", len(used)).
		Int("tokens_used", completion.TokensUsed).
		Msg("chat answered")

	if used == nil {
		used = []UsedFile{}
	}
	return &ChatOutput{
		Answer:              completion.Content,
		UsedFiles:           used,
		ConversationHistory: history,
		Model:               completion.Model,
		Metadata: ChatMetadata{
			FilesConsidered: len(hits),
			FilesUsed:       len(used),
			TokensUsed:      completion.TokensUsed,
		},
	}, nil
}

// BatchProcess answers several questions concurrently. Results keep the
// order of inputs; one failure does not affect the others.
func (s *ChatService) BatchProcess(ctx context.Context, inputs []ChatInput) []result.Result[*ChatOutput] {
	return result.Gather(ctx, len(inputs), batchConcurrency, func(ctx context.Context, i int) (*ChatOutput, error) {
		return s.Chat(ctx, inputs[i])
	})
}

// Summarize condenses text to about maxLength characters.
func (s *ChatService) Summarize(ctx context.Context, caller *domain.User, text string, maxLength int) (*SummaryOutput, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.Validationf("text must not be empty")
	}
	if s.completer == nil {
		return nil, ErrChatUnavailable
	}
	if maxLength <= 0 {
		maxLength = DefaultSummaryLength
	}

	text, _ = transform.Truncate(text, MaxContextLength)
	completion, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Model: s.completer.ModelFor(0),
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf("Summarize the user's text in at most %d characters. Keep the language of the text.", maxLength)},
			{Role: llm.RoleUser, Content: text},
		},
	})
	if err != nil {
		return nil, err
	}

	return &SummaryOutput{
		Summary:    completion.Content,
		Model:      completion.Model,
		TokensUsed: completion.TokensUsed,
	}, nil
}

// displayName returns the uploaded name behind a backend path, or its base.
func (s *ChatService) displayName(ctx context.Context, p string) string {
	if f, err := s.fileRepo.GetByID(ctx, strings.TrimPrefix(p, "/")); err == nil && f != nil {
		return f.Name
	}
	return path.Base(p)
}

// promptText turns backend content into prompt text. Binary content is skipped.
func promptText(content string) (string, bool) {
	if isPDF, raw := transform.IsPDFContent(content); isPDF {
		text, err := transform.ExtractPDFText(raw)
		return text, err == nil
	}
	if transform.LooksLikeBase64(content) {
		return "", false
	}
	return content, strings.TrimSpace(content) != ""
}
