package bot

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// Callback data prefixes.
const (
	callbackContainer       = "container_"
	callbackFile            = "file_"
	callbackCreateContainer = "create_container"
	callbackFileList        = "file_list"
	callbackFileUpload      = "file_upload"

	// maxCallbackData is Telegram's limit on callback data, in bytes.
	maxCallbackData = 64

	buttonsPerRow = 5
)

// containersKeyboard offers one button per container plus a create button.
// Containers whose id does not fit into callback data get no button.
func containersKeyboard(containers []*domain.Container) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range containers {
		data := callbackContainer + c.ID
		if len(data) > maxCallbackData {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📁 "+c.ID, data),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➕ New container", callbackCreateContainer),
		tgbotapi.NewInlineKeyboardButtonData("📂 Files", callbackFileList),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// searchKeyboard numbers the hits of search sid.
func searchKeyboard(sid string, n int) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i := 0; i < n; i++ {
		data := callbackFile + sid + "_" + strconv.Itoa(i)
		if len(data) > maxCallbackData {
			return tgbotapi.InlineKeyboardMarkup{}, false
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(i+1), data))
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// workKeyboard follows a container selection.
func workKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📂 Files", callbackFileList),
		tgbotapi.NewInlineKeyboardButtonData("📤 Upload", callbackFileUpload),
	))
}
