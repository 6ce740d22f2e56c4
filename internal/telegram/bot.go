// Package telegram connects the conversation layer to the Telegram Bot API.
package telegram

import (
	"context"
	"strconv"

	"aprs-friend-alert/internal/conversation"
	"aprs-friend-alert/internal/pkg/logger"
	"aprs-friend-alert/pkg/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	moduleName = "TELEGRAM"
	// Escaping at most doubles a chunk, which keeps it under the 4096 limit.
	maxChunkRunes = 2000
)

type Bot struct {
	api    *tgbotapi.BotAPI
	logger logger.ILogger
}

// NewBot authenticates against the Bot API. An empty endpoint means the
// public Telegram server.
func NewBot(token, endpoint string, log logger.ILogger) (*Bot, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, err
	}
	log.Info(moduleName, "Authorized bot account", map[string]interface{}{"username": api.Self.UserName})
	return &Bot{api: api, logger: log}, nil
}

func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Send delivers text as MarkdownV2. Failures are logged at WARN and never
// returned.
func (b *Bot) Send(ctx context.Context, chatID, text string) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		b.logger.Warn(moduleName, "Refusing to send to a malformed chat id", map[string]interface{}{"chat_id": chatID})
		return
	}
	if ctx.Err() != nil {
		return
	}

	// Split before escaping so an escape sequence is never cut in half.
	for _, chunk := range utils.SplitText(text, maxChunkRunes) {
		msg := tgbotapi.NewMessage(id, tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, chunk))
		msg.ParseMode = tgbotapi.ModeMarkdownV2
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Warn(moduleName, "Failed to send message", map[string]interface{}{
				"chat_id": chatID,
				"error":   err.Error(),
			})
			return
		}
	}
}

// Run long-polls for updates and hands every text message to dispatch until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context, dispatch func(conversation.Message)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if msg, ok := toMessage(update); ok {
				dispatch(msg)
			}
		}
	}
}

func toMessage(update tgbotapi.Update) (conversation.Message, bool) {
	m := update.Message
	if m == nil || m.Chat == nil || m.Text == "" {
		return conversation.Message{}, false
	}
	msg := conversation.Message{
		ChatID: strconv.FormatInt(m.Chat.ID, 10),
		Text:   m.Text,
	}
	if m.From != nil {
		msg.FirstName = m.From.FirstName
	}
	return msg, true
}
