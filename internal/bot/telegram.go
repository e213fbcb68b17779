package bot

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"notebot/internal/domain"
)

// TelegramGateway wraps the Telegram Bot API for reply delivery and
// voice file resolution.
type TelegramGateway struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewTelegramGateway connects to the Telegram Bot API.
func NewTelegramGateway(token string, logger *slog.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)
	return &TelegramGateway{bot: bot, logger: logger}, nil
}

// Username returns the connected bot's username.
func (g *TelegramGateway) Username() string { return g.bot.Self.UserName }

// Reply sends a message to the chat. Delivery failures are logged, not
// surfaced: the webhook acknowledgment never depends on reply delivery.
func (g *TelegramGateway) Reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := g.bot.Send(msg); err != nil {
		g.logger.Error("telegram reply failed", "chat_id", chatID, "err", err)
	}
}

// ResolveVoiceURL resolves a Telegram voice file ID to a direct
// download URL for the transcription service.
func (g *TelegramGateway) ResolveVoiceURL(fileID string) (string, error) {
	url, err := g.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("telegram file resolve: %w", err)
	}
	return url, nil
}

// FromTelegram maps a Telegram update envelope to the domain update.
// Commands, edits, and anything that is neither plain text nor a voice
// message classify as KindOther.
func FromTelegram(u tgbotapi.Update) domain.Update {
	out := domain.Update{ID: u.UpdateID, Kind: domain.KindOther}
	msg := u.Message
	if msg == nil {
		return out
	}
	if msg.Chat != nil {
		out.ChatID = msg.Chat.ID
	}
	if msg.From != nil {
		out.SenderID = msg.From.ID
	}
	switch {
	case msg.Voice != nil:
		out.Kind = domain.KindVoice
		out.VoiceRef = msg.Voice.FileID
	case msg.Text != "" && !msg.IsCommand():
		out.Kind = domain.KindText
		out.RawText = msg.Text
	}
	return out
}
