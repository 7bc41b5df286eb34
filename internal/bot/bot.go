// Package bot implements the Telegram surface of Owl Middleware.
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/metrics"
	"github.com/prn-tf/owl-middleware/internal/service"
)

// Bot defaults.
const (
	DefaultWorkers     = 16
	DefaultPollTimeout = 60
	DefaultSearchLimit = 10

	// handleTimeout bounds the work done for a single update.
	handleTimeout = 5 * time.Minute

	genericFailure = "Something went wrong, please try again later."
)

// Config configures the bot.
type Config struct {
	WebURL      string
	Workers     int
	PollTimeout int
	SearchLimit int
	MaxFileSize int64

	// TokenHours is shown next to the /web link.
	TokenHours int
}

// Deps are the services the bot drives.
type Deps struct {
	API        API
	Auth       AuthService
	Containers ContainerService
	Files      FileService
	Search     SearchService
	OCR        OCRService
	State      StateService
	Sessions   *service.SearchSessions

	// Fetcher defaults to downloading through the Bot API.
	Fetcher FileFetcher

	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Bot dispatches Telegram updates onto the services.
type Bot struct {
	api        API
	auth       AuthService
	containers ContainerService
	files      FileService
	search     SearchService
	ocr        OCRService
	state      StateService
	sessions   *service.SearchSessions
	fetcher    FileFetcher
	renderer   *Renderer
	config     Config
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// New creates a Bot.
func New(config Config, deps Deps) (*Bot, error) {
	if deps.API == nil {
		return nil, errors.New("bot: telegram api is required")
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = DefaultPollTimeout
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = DefaultSearchLimit
	}
	if config.TokenHours <= 0 {
		config.TokenHours = 24
	}

	fetcher := deps.Fetcher
	if fetcher == nil {
		fetcher = newAPIFetcher(deps.API, config.MaxFileSize)
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = service.NewSearchSessions(0, 0, deps.Metrics)
	}

	return &Bot{
		api:        deps.API,
		auth:       deps.Auth,
		containers: deps.Containers,
		files:      deps.Files,
		search:     deps.Search,
		ocr:        deps.OCR,
		state:      deps.State,
		sessions:   sessions,
		fetcher:    fetcher,
		renderer:   renderer,
		config:     config,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With().Str("component", "bot").Logger(),
	}, nil
}

// Run long-polls for updates until ctx is cancelled, handling at most
// Config.Workers updates at a time. It waits for in-flight updates.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.PollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info().Int("workers", b.config.Workers).Msg("bot started")

	sem := make(chan struct{}, b.config.Workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info().Msg("bot stopping")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return nil
			}
			wg.Add(1)
			go func(update tgbotapi.Update) {
				defer wg.Done()
				defer func() { <-sem }()
				// Updates outlive a shutdown signal so replies are not cut off.
				uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handleTimeout)
				defer cancel()
				b.HandleUpdate(uctx, update)
			}(update)
		}
	}
}

// HandleUpdate processes one update. Panics are recovered and answered with
// a generic apology.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	kind := updateKind(update)
	chatID := updateChatID(update)

	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error().
				Interface("panic", rec).
				Str("kind", kind).
				Bytes("stack", debug.Stack()).
				Msg("panic while handling update")
			b.metrics.RecordBotUpdate(kind, fmt.Errorf("panic: %v", rec))
			if chatID != 0 {
				b.sendText(chatID, genericFailure)
			}
		}
	}()

	err := b.dispatch(ctx, update, kind)
	b.metrics.RecordBotUpdate(kind, err)
	if err != nil && chatID != 0 {
		b.replyError(chatID, err)
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update, kind string) error {
	from := updateSender(update)
	if from == nil || kind == "other" {
		return nil
	}
	// /register must see whether the user existed before this update.
	if kind == "command" && update.Message.Command() == "register" {
		return b.cmdRegister(ctx, update.Message.Chat.ID, from)
	}

	user, err := b.auth.ResolveTelegramUser(ctx, profileOf(from))
	if err != nil {
		return err
	}
	if err := b.state.Touch(ctx, user.ID); err != nil {
		b.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("state touch failed")
	}

	log := b.logger.With().Int64("user_id", user.ID).Str("kind", kind).Logger()
	ctx = log.WithContext(ctx)

	switch kind {
	case "callback":
		return b.handleCallback(ctx, user, update.CallbackQuery)
	case "command":
		return b.handleCommand(ctx, user, update.Message)
	case "document":
		return b.handleDocument(ctx, user, update.Message)
	case "photo":
		return b.handlePhoto(ctx, user, update.Message)
	default:
		return b.reply(update.Message.Chat.ID, "unknown", nil, nil)
	}
}

func updateKind(update tgbotapi.Update) string {
	switch {
	case update.CallbackQuery != nil:
		return "callback"
	case update.Message == nil:
		return "other"
	case update.Message.IsCommand():
		return "command"
	case update.Message.Document != nil:
		return "document"
	case len(update.Message.Photo) > 0:
		return "photo"
	}
	return "text"
}

func updateChatID(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	}
	return 0
}

func updateSender(update tgbotapi.Update) *tgbotapi.User {
	switch {
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From
	case update.Message != nil:
		return update.Message.From
	}
	return nil
}

func profileOf(u *tgbotapi.User) service.TelegramProfile {
	return service.TelegramProfile{
		ID:           u.ID,
		Username:     u.UserName,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
	}
}

// reply renders a template and sends it as HTML.
func (b *Bot) reply(chatID int64, name string, values any, markup any) error {
	text, err := b.renderer.Render(name, values)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Str("template", name).Msg("send failed")
	}
	return nil
}

func (b *Bot) sendText(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

// replyError tells the user what failed. Internal failures are logged and
// reported generically.
func (b *Bot) replyError(chatID int64, err error) {
	values := struct {
		Message    string
		Suggestion string
	}{
		Message:    domain.Message(err),
		Suggestion: service.Suggestion(err),
	}

	switch domain.Class(err) {
	case domain.ErrInternal:
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("update failed")
		values.Message = genericFailure
	case domain.ErrRemoteService:
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("update failed")
	}

	text, rerr := b.renderer.Render("error", values)
	if rerr != nil {
		b.sendText(chatID, genericFailure)
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, serr := b.api.Send(msg); serr != nil {
		b.logger.Warn().Err(serr).Int64("chat_id", chatID).Msg("send failed")
	}
}
