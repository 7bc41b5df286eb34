package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/owl-middleware/internal/backend"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/llm"
)

type chatFixture struct {
	svc       *ChatService
	files     *MockFileRepository
	remote    *fakeBackend
	completer *mockCompleter
	owner     *domain.User
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	containers := NewMockContainerRepository()
	f := &chatFixture{
		files:     NewMockFileRepository(),
		remote:    newFakeBackend(),
		completer: new(mockCompleter),
		owner:     testUser(42),
	}
	activeContainer(containers, f.remote, "work", f.owner.ID, domain.DefaultTariff())
	search := NewSearchService(containers, f.remote, zerolog.Nop())
	f.svc = NewChatService(search, containers, f.files, f.remote, f.completer,
		ChatConfig{SystemPrompt: "SYSTEM", MaxContextFiles: 10}, zerolog.Nop())
	return f
}

// addHit stores content on the fake backend and makes it a search result.
func (f *chatFixture) addHit(path, content string, score float64) {
	f.remote.files["work"+path] = content
	f.remote.searchResults = append(f.remote.searchResults, backend.SearchResult{Path: path, Score: score})
}

func TestChatService_Chat(t *testing.T) {
	f := newChatFixture(t)
	f.addHit("/f1", "owls hunt at night", 0.9)
	f.addHit("/gone", "", 0.8)
	delete(f.remote.files, "work/gone")

	stored := domain.NewFile("f1", "work", f.owner.ID, "owls.txt", 18, "text/plain")
	f.files.files["f1"] = stored

	var sent llm.CompletionRequest
	f.completer.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(llm.CompletionRequest) }).
		Return(&llm.Completion{Content: "At night.", Model: "small", TokensUsed: 42}, nil)

	out, err := f.svc.Chat(context.Background(), ChatInput{
		Caller:      f.owner,
		ContainerID: "work",
		Query:       "when do owls hunt?",
		ModelFlag:   llm.SecondaryModelFlag,
	})
	require.NoError(t, err)

	assert.Equal(t, "At night.", out.Answer)
	assert.Equal(t, "small", out.Model)
	assert.Equal(t, []UsedFile{{Path: "/f1", Name: "owls.txt", Score: 0.9}}, out.UsedFiles)
	assert.Equal(t, ChatMetadata{FilesConsidered: 2, FilesUsed: 1, TokensUsed: 42}, out.Metadata)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "when do owls hunt?"},
		{Role: llm.RoleAssistant, Content: "At night."},
	}, out.ConversationHistory)

	assert.Equal(t, "small", sent.Model)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, llm.RoleSystem, sent.Messages[0].Role)
	assert.True(t, strings.HasPrefix(sent.Messages[0].Content, "SYSTEM"))
	assert.Contains(t, sent.Messages[0].Content, "### owls.txt (/f1)\nowls hunt at night")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "when do owls hunt?"}, sent.Messages[1])
	f.completer.AssertExpectations(t)
}

func TestChatService_ContextIsBounded(t *testing.T) {
	f := newChatFixture(t)
	for i := 0; i < 10; i++ {
		f.addHit(fmt.Sprintf("/doc%d", i), strings.Repeat("x", 5000), 1-float64(i)/10)
	}

	var system string
	f.completer.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { system = args.Get(1).(llm.CompletionRequest).Messages[0].Content }).
		Return(&llm.Completion{Content: "ok", Model: "large"}, nil)

	out, err := f.svc.Chat(context.Background(), ChatInput{Caller: f.owner, ContainerID: "work", Query: "x?"})
	require.NoError(t, err)

	// Each block carries a truncated snippet, and the sum stays within the context bound.
	assert.Less(t, len(out.UsedFiles), 10)
	assert.Greater(t, len(out.UsedFiles), 0)
	contextPart := system[len("SYSTEM\n\nFile context:\n\n"):]
	assert.LessOrEqual(t, utf8.RuneCountInString(contextPart), MaxContextLength)
	assert.NotContains(t, system, strings.Repeat("x", MaxSnippetLength+1))
}

func TestChatService_HistoryIsTrimmed(t *testing.T) {
	f := newChatFixture(t)
	var sent []llm.Message
	f.completer.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(llm.CompletionRequest).Messages }).
		Return(&llm.Completion{Content: "answer", Model: "large"}, nil)

	history := make([]llm.Message, 0, 12)
	for i := 0; i < 12; i++ {
		history = append(history, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	out, err := f.svc.Chat(context.Background(), ChatInput{
		Caller: f.owner, ContainerID: "work", Query: "next", History: history,
	})
	require.NoError(t, err)

	// system + last MaxHistoryMessages of history + question
	require.Len(t, sent, MaxHistoryMessages+2)
	assert.Equal(t, "m2", sent[1].Content)
	assert.Equal(t, "next", sent[len(sent)-1].Content)

	require.Len(t, out.ConversationHistory, MaxHistoryMessages)
	assert.Equal(t, "m4", out.ConversationHistory[0].Content)
	assert.Equal(t, "answer", out.ConversationHistory[MaxHistoryMessages-1].Content)
	assert.Empty(t, out.UsedFiles)
	assert.NotNil(t, out.UsedFiles)
}

func TestChatService_SkipsBinaryContent(t *testing.T) {
	f := newChatFixture(t)
	f.addHit("/blob", strings.Repeat("QUJD", 60), 0.7)

	f.completer.On("Complete", mock.Anything, mock.Anything).
		Return(&llm.Completion{Content: "none", Model: "large"}, nil)

	out, err := f.svc.Chat(context.Background(), ChatInput{Caller: f.owner, ContainerID: "work", Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, out.UsedFiles)
	assert.Equal(t, 1, out.Metadata.FilesConsidered)
}

func TestChatService_Errors(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		f := newChatFixture(t)
		_, err := f.svc.Chat(context.Background(), ChatInput{Caller: f.owner, ContainerID: "work", Query: " "})
		assert.ErrorIs(t, err, domain.ErrEmptyQuery)
		assert.Equal(t, 0, f.remote.count("semantic_search"))
	})

	t.Run("no provider", func(t *testing.T) {
		f := newChatFixture(t)
		f.svc.completer = nil
		_, err := f.svc.Chat(context.Background(), ChatInput{Caller: f.owner, ContainerID: "work", Query: "q"})
		assert.ErrorIs(t, err, ErrChatUnavailable)
	})

	t.Run("stranger", func(t *testing.T) {
		f := newChatFixture(t)
		_, err := f.svc.Chat(context.Background(), ChatInput{Caller: testUser(7), ContainerID: "work", Query: "q"})
		assert.ErrorIs(t, err, domain.ErrForbidden)
		f.completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newChatFixture(t)
		f.completer.On("Complete", mock.Anything, mock.Anything).Return(nil, llm.ErrProvider)
		_, err := f.svc.Chat(context.Background(), ChatInput{Caller: f.owner, ContainerID: "work", Query: "q"})
		assert.ErrorIs(t, err, domain.ErrRemoteService)
	})
}

func TestChatService_BatchProcess(t *testing.T) {
	f := newChatFixture(t)
	f.completer.On("Complete", mock.Anything, mock.Anything).
		Return(&llm.Completion{Content: "ok", Model: "large"}, nil)

	results := f.svc.BatchProcess(context.Background(), []ChatInput{
		{Caller: f.owner, ContainerID: "work", Query: "first"},
		{Caller: f.owner, ContainerID: "work", Query: ""},
		{Caller: f.owner, ContainerID: "missing", Query: "third"},
	})
	require.Len(t, results, 3)

	out, err := results[0].Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Answer)

	_, err = results[1].Unwrap()
	assert.True(t, errors.Is(err, domain.ErrEmptyQuery))

	_, err = results[2].Unwrap()
	assert.True(t, errors.Is(err, domain.ErrContainerNotFound))
}

func TestChatService_Summarize(t *testing.T) {
	f := newChatFixture(t)
	f.completer.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.CompletionRequest) bool {
		return len(req.Messages) == 2 && strings.Contains(req.Messages[0].Content, "100 characters")
	})).Return(&llm.Completion{Content: "short", Model: "large", TokensUsed: 3}, nil)

	out, err := f.svc.Summarize(context.Background(), f.owner, "a long text", 100)
	require.NoError(t, err)
	assert.Equal(t, "short", out.Summary)
	assert.Equal(t, 3, out.TokensUsed)

	_, err = f.svc.Summarize(context.Background(), f.owner, "  ", 100)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Summarize(context.Background(), nil, "text", 100)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}
