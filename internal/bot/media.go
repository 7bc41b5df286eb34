package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/service"
)

// handleDocument stores a sent document in the work container.
func (b *Bot) handleDocument(ctx context.Context, user *domain.User, msg *tgbotapi.Message) error {
	doc := msg.Document
	if b.config.MaxFileSize > 0 && int64(doc.FileSize) > b.config.MaxFileSize {
		return domain.ErrFileTooLarge
	}

	container, err := b.resolveContainer(ctx, user)
	if err != nil {
		return err
	}

	data, err := b.fetcher.Fetch(ctx, doc.FileID)
	if err != nil {
		return err
	}

	name := doc.FileName
	if name == "" {
		name = "document_" + doc.FileUniqueID
	}

	out, err := b.files.Upload(ctx, service.UploadInput{
		Caller:      user,
		ContainerID: container.ID,
		Name:        name,
		MimeType:    doc.MimeType,
		Content:     data,
	})
	if err != nil {
		return err
	}
	return b.reply(msg.Chat.ID, "upload_result", out, nil)
}

// handlePhoto recognises the text of the largest photo size. The text is
// saved into the work container when the user has one.
func (b *Bot) handlePhoto(ctx context.Context, user *domain.User, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]
	chatID := msg.Chat.ID

	container, err := b.resolveContainer(ctx, user)
	switch {
	case err == nil:
	case domain.Class(err) == domain.ErrNotFound:
		container = nil
	default:
		return err
	}

	image, err := b.fetcher.Fetch(ctx, photo.FileID)
	if err != nil {
		return err
	}

	input := service.ProcessInput{
		Caller:    user,
		Image:     image,
		Filename:  photo.FileUniqueID + ".jpg",
		Visualize: true,
	}
	if container != nil {
		input.ContainerID = container.ID
		input.Save = true
	}

	out, err := b.ocr.Process(ctx, input)
	if err != nil {
		return err
	}

	log := zerolog.Ctx(ctx)
	if len(out.Visualization) > 0 {
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "ocr_boxes.jpg", Bytes: out.Visualization})
		p.Caption = fmt.Sprintf("%d text blocks", out.BoxesCount)
		if _, err := b.api.Send(p); err != nil {
			log.Warn().Err(err).Msg("failed to send ocr visualization")
		}
	}

	name := out.FileName
	if name == "" {
		name = "ocr_result"
	}
	d := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name + ".txt", Bytes: []byte(out.Text)})
	if _, err := b.api.Send(d); err != nil {
		log.Warn().Err(err).Msg("failed to send ocr text")
	}

	values := map[string]any{"Output": out, "Container": ""}
	if container != nil {
		values["Container"] = container.ID
	}
	return b.reply(chatID, "ocr_result", values, nil)
}

// sendDocument sends data as a file with a rendered caption.
func (b *Bot) sendDocument(chatID int64, name string, data []byte, caption string, values any) error {
	text, err := b.renderer.Render(caption, values)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	d := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	d.Caption = text
	d.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(d); err != nil {
		return fmt.Errorf("%w: send document: %v", domain.ErrRemoteService, err)
	}
	return nil
}
