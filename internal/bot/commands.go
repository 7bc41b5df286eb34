package bot

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/service"
	"github.com/prn-tf/owl-middleware/internal/transform"
)

func (b *Bot) handleCommand(ctx context.Context, user *domain.User, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	zerolog.Ctx(ctx).Debug().Str("command", msg.Command()).Int("args", len(args)).Msg("command received")

	switch msg.Command() {
	case "start", "help":
		return b.reply(chatID, "start", map[string]any{"User": user}, nil)
	case "upload":
		return b.cmdUpload(ctx, chatID, user)
	case "search":
		return b.cmdSearch(ctx, chatID, user, msg.CommandArguments())
	case "read":
		return b.cmdRead(ctx, chatID, user, args)
	case "container":
		return b.cmdContainer(ctx, chatID, user, args)
	case "containers":
		return b.cmdContainers(ctx, chatID, user)
	case "list":
		return b.cmdList(ctx, chatID, user)
	case "delete":
		return b.cmdDelete(ctx, chatID, user, args)
	case "download":
		return b.cmdDownload(ctx, chatID, user, args)
	case "web":
		return b.cmdWeb(chatID, user)
	case "health":
		return b.reply(chatID, "health", map[string]any{"Online": b.search.Health(ctx)}, nil)
	case "rebuild":
		message, err := b.search.RebuildIndex(ctx, user)
		if err != nil {
			return err
		}
		return b.reply(chatID, "rebuild", map[string]any{"Message": message}, nil)
	case "status":
		status, err := b.search.Status(ctx, user)
		if err != nil {
			return err
		}
		return b.reply(chatID, "status", map[string]any{"Status": status}, nil)
	}
	return b.reply(chatID, "unknown", nil, nil)
}

func (b *Bot) cmdRegister(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	user, err := b.auth.RegisterTelegram(ctx, profileOf(from))
	existing := errors.Is(err, domain.ErrUserAlreadyExists)
	if err != nil && !existing {
		return err
	}
	return b.reply(chatID, "register", map[string]any{"User": user, "Existing": existing}, nil)
}

func (b *Bot) cmdUpload(ctx context.Context, chatID int64, user *domain.User) error {
	container, err := b.resolveContainer(ctx, user)
	if err != nil {
		return err
	}
	return b.reply(chatID, "upload_prompt", map[string]any{
		"Container": container.ID,
		"MaxSize":   transform.FormatSize(b.config.MaxFileSize),
	}, nil)
}

func (b *Bot) cmdSearch(ctx context.Context, chatID int64, user *domain.User, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.ErrEmptyQuery
	}
	container, err := b.resolveContainer(ctx, user)
	if err != nil {
		return err
	}

	out, err := b.search.Search(ctx, user, container.ID, query, b.config.SearchLimit)
	if err != nil {
		return err
	}

	var markup any
	if len(out.Results) > 0 {
		sid := b.sessions.Put(user.ID, out.Results)
		if kb, ok := searchKeyboard(sid, len(out.Results)); ok {
			markup = kb
		}
	}
	return b.reply(chatID, "search", out, markup)
}

func (b *Bot) cmdRead(ctx context.Context, chatID int64, user *domain.User, args []string) error {
	if len(args) == 0 {
		return domain.Validationf("usage: /read <file id> [container]")
	}
	containerID := ""
	if len(args) > 1 {
		containerID = args[1]
	} else {
		container, err := b.resolveContainer(ctx, user)
		if err != nil {
			return err
		}
		containerID = container.ID
	}
	return b.sendContent(ctx, chatID, user, containerID, args[0])
}

func (b *Bot) sendContent(ctx context.Context, chatID int64, user *domain.User, containerID, fileID string) error {
	content, err := b.files.Read(ctx, user, containerID, fileID)
	if err != nil {
		return err
	}
	return b.reply(chatID, "read", map[string]any{"Content": content}, nil)
}

// cmdContainer creates a container: /container <id> [memory MB] [quota MB] [files].
func (b *Bot) cmdContainer(ctx context.Context, chatID int64, user *domain.User, args []string) error {
	if len(args) == 0 {
		return b.reply(chatID, "create_container_help", map[string]any{"Defaults": domain.DefaultTariff()}, nil)
	}

	tariff, err := parseTariff(args[1:])
	if err != nil {
		return err
	}

	out, err := b.containers.Create(ctx, service.CreateContainerInput{
		Caller:      user,
		ContainerID: args[0],
		Tariff:      &tariff,
	})
	if err != nil {
		return err
	}
	if err := b.state.SetWorkContainer(ctx, user.ID, out.Container.ID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to select new container")
	}
	return b.reply(chatID, "container_created", out, nil)
}

// parseTariff reads up to three positional limits; missing ones keep defaults.
func parseTariff(args []string) (domain.Tariff, error) {
	t := domain.DefaultTariff()
	names := []string{"memory", "quota", "files"}
	for i, arg := range args {
		if i >= len(names) {
			break
		}
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || n <= 0 {
			return t, domain.Validationf("%s must be a positive number, got %q", names[i], arg)
		}
		switch i {
		case 0:
			t.MemoryLimit = n
		case 1:
			quota, err := domain.StorageQuotaFromMB(n)
			if err != nil {
				return t, err
			}
			t.StorageQuota = quota
		case 2:
			t.FileLimit = n
		}
	}
	return t, nil
}

func (b *Bot) cmdContainers(ctx context.Context, chatID int64, user *domain.User) error {
	containers, err := b.containers.List(ctx, user)
	if err != nil {
		return err
	}
	work, err := b.state.WorkContainer(ctx, user.ID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to read work container")
	}

	return b.reply(chatID, "containers", map[string]any{"Containers": containers, "Work": work}, containersKeyboard(containers))
}

func (b *Bot) cmdList(ctx context.Context, chatID int64, user *domain.User) error {
	container, err := b.resolveContainer(ctx, user)
	if err != nil {
		return err
	}
	files, err := b.files.List(ctx, user, container.ID)
	if err != nil {
		return err
	}
	return b.reply(chatID, "files", map[string]any{"Container": container.ID, "Files": files}, nil)
}

func (b *Bot) cmdDelete(ctx context.Context, chatID int64, user *domain.User, args []string) error {
	if len(args) == 0 {
		return domain.Validationf("usage: /delete <file id>")
	}
	if err := b.files.Delete(ctx, user, "", args[0]); err != nil {
		return err
	}
	return b.reply(chatID, "delete", map[string]any{"FileID": args[0]}, nil)
}

// cmdDownload lists every file without arguments, otherwise sends one file
// as a document. The container defaults to the work container.
func (b *Bot) cmdDownload(ctx context.Context, chatID int64, user *domain.User, args []string) error {
	if len(args) == 0 {
		files, err := b.files.ListForUser(ctx, user)
		if err != nil {
			return err
		}
		return b.reply(chatID, "file_list", map[string]any{"Files": files}, nil)
	}

	containerID := ""
	if len(args) > 1 {
		containerID = args[1]
	} else {
		container, err := b.resolveContainer(ctx, user)
		if err != nil {
			return err
		}
		containerID = container.ID
	}

	dl, err := b.files.Download(ctx, user, args[0], containerID)
	if err != nil {
		return err
	}
	return b.sendDocument(chatID, dl.Name, dl.Data, "download", map[string]any{
		"Name": dl.Name,
		"Size": int64(len(dl.Data)),
	})
}

func (b *Bot) cmdWeb(chatID int64, user *domain.User) error {
	if b.config.WebURL == "" {
		return domain.ErrWebNotConfigured
	}
	token, err := b.auth.IssueToken(user)
	if err != nil {
		return err
	}
	link, err := webLink(b.config.WebURL, token)
	if err != nil {
		return err
	}
	return b.reply(chatID, "web", map[string]any{"URL": link, "Hours": b.config.TokenHours}, nil)
}

// webLink appends the token as the ?token= query parameter.
func webLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", domain.Validationf("invalid web url: %v", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// resolveContainer returns the work container, falling back to the user's
// first container when none is selected or the selection went stale.
func (b *Bot) resolveContainer(ctx context.Context, user *domain.User) (*domain.Container, error) {
	work, err := b.state.WorkContainer(ctx, user.ID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to read work container")
		work = ""
	}

	container, err := b.containers.Resolve(ctx, user, work)
	if err == nil || work == "" || domain.Class(err) != domain.ErrNotFound {
		return container, err
	}

	if cerr := b.state.ClearWorkContainer(ctx, user.ID); cerr != nil {
		zerolog.Ctx(ctx).Warn().Err(cerr).Msg("failed to clear stale work container")
	}
	return b.containers.Resolve(ctx, user, "")
}
