package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-telegram/bot"
)

// Telegram posts events to a single chat through the Bot API.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	host   string
	logger *slog.Logger
}

// NewTelegram creates a Telegram notifier. The bot is created without the
// initial getMe call so that a Telegram outage never delays process startup.
func NewTelegram(token string, chatID int64, logger *slog.Logger, opts ...bot.Option) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram bot token cannot be empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_notifier")

	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	host, _ := os.Hostname()
	return &Telegram{bot: b, chatID: chatID, host: host, logger: log}, nil
}

// Notify sends ev to the configured chat.
func (t *Telegram) Notify(ctx context.Context, ev Event) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   FormatEvent(t.host, ev),
	})
	if err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}
	t.logger.Debug("Notification sent", "process", ev.Process, "kind", ev.Kind)
	return nil
}
