package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSink delivers notifications to the parents' Telegram chat
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegramSink creates a Telegram-backed notification sink
func NewTelegramSink(token string, chatID int64, logger *slog.Logger) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Telegram sink ready", "bot", api.Self.UserName)

	return &TelegramSink{
		api:    api,
		chatID: chatID,
		logger: logger,
	}, nil
}

// Notify sends one notification as a Telegram message. Urgent notifications
// keep the chat notification sound on; routine ones are sent silently.
func (s *TelegramSink) Notify(ctx context.Context, n Notification) error {
	msg := tgbotapi.NewMessage(s.chatID, fmt.Sprintf("*%s*\n%s", n.Title, n.Body))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableNotification = !n.RequireInteraction

	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	s.logger.Debug("Telegram message sent", "dedup_key", n.DedupKey)
	return nil
}

// NopSink drops every notification; used when no sink is configured or the
// user has not granted notification permission.
type NopSink struct{}

// Notify discards the notification
func (NopSink) Notify(ctx context.Context, n Notification) error {
	return nil
}

var (
	_ Sink = (*TelegramSink)(nil)
	_ Sink = NopSink{}
)
