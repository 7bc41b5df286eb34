package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

func (b *Bot) handleCallback(ctx context.Context, user *domain.User, q *tgbotapi.CallbackQuery) error {
	// Answer first so the client stops the spinner even when handling fails.
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("callback answer failed")
	}
	if q.Message == nil {
		return nil
	}
	chatID := q.Message.Chat.ID
	data := q.Data

	switch {
	case data == callbackCreateContainer:
		return b.reply(chatID, "create_container_help", map[string]any{"Defaults": domain.DefaultTariff()}, nil)
	case data == callbackFileList:
		return b.cmdList(ctx, chatID, user)
	case data == callbackFileUpload:
		return b.cmdUpload(ctx, chatID, user)
	case strings.HasPrefix(data, callbackContainer):
		return b.selectContainer(ctx, chatID, user, strings.TrimPrefix(data, callbackContainer))
	case strings.HasPrefix(data, callbackFile):
		return b.openHit(ctx, chatID, user, strings.TrimPrefix(data, callbackFile))
	}

	zerolog.Ctx(ctx).Debug().Str("data", data).Msg("unknown callback")
	return nil
}

func (b *Bot) selectContainer(ctx context.Context, chatID int64, user *domain.User, id string) error {
	container, err := b.containers.Get(ctx, user, id)
	if err != nil {
		return err
	}
	if err := b.state.SetWorkContainer(ctx, user.ID, container.ID); err != nil {
		return err
	}
	return b.reply(chatID, "container_selected", map[string]any{"Container": container}, workKeyboard())
}

// openHit reads the file behind "<search id>_<index>".
func (b *Bot) openHit(ctx context.Context, chatID int64, user *domain.User, ref string) error {
	sep := strings.LastIndexByte(ref, '_')
	if sep <= 0 {
		return domain.ErrSearchExpired
	}
	idx, err := strconv.Atoi(ref[sep+1:])
	if err != nil {
		return domain.ErrSearchExpired
	}
	hit, ok := b.sessions.Hit(user.ID, ref[:sep], idx)
	if !ok {
		return domain.ErrSearchExpired
	}

	container, err := b.resolveContainer(ctx, user)
	if err != nil {
		return err
	}
	return b.sendContent(ctx, chatID, user, container.ID, hit.Path)
}
