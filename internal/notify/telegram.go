package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier delivers payloads via the Telegram Bot API. User IDs are
// Telegram chat IDs.
type TelegramNotifier struct {
	api *tgbotapi.BotAPI
}

// NewTelegramNotifier creates a notifier backed by an authorized bot.
func NewTelegramNotifier(api *tgbotapi.BotAPI) *TelegramNotifier {
	return &TelegramNotifier{api: api}
}

// Send delivers a payload as a Telegram message. Media payloads are sent by
// file ID so the relay never touches the bytes.
func (n *TelegramNotifier) Send(_ context.Context, userID int64, p Payload) error {
	msg, err := buildMessage(userID, p)
	if err != nil {
		return err
	}
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("notify: send to %d: %w", userID, err)
	}
	return nil
}

func buildMessage(chatID int64, p Payload) (tgbotapi.Chattable, error) {
	markup := keyboardMarkup(p.Keyboard)

	if p.Media == nil {
		msg := tgbotapi.NewMessage(chatID, p.Text)
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		return msg, nil
	}

	file := tgbotapi.FileID(p.Media.FileID)
	switch p.Media.Kind {
	case MediaPhoto:
		msg := tgbotapi.NewPhoto(chatID, file)
		msg.Caption = p.Media.Caption
		return msg, nil
	case MediaVideo:
		msg := tgbotapi.NewVideo(chatID, file)
		msg.Caption = p.Media.Caption
		return msg, nil
	case MediaVoice:
		msg := tgbotapi.NewVoice(chatID, file)
		msg.Caption = p.Media.Caption
		return msg, nil
	case MediaAnimation:
		msg := tgbotapi.NewAnimation(chatID, file)
		msg.Caption = p.Media.Caption
		return msg, nil
	case MediaSticker:
		return tgbotapi.NewSticker(chatID, file), nil
	case MediaVideoNote:
		return tgbotapi.NewVideoNote(chatID, 0, file), nil
	default:
		return nil, fmt.Errorf("notify: unknown media kind %q", p.Media.Kind)
	}
}

func keyboardMarkup(rows [][]Button) interface{} {
	if len(rows) == 0 {
		return nil
	}
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		kbRow := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			kbRow = append(kbRow, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		kbRows = append(kbRows, kbRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...)
}
