// Package notify delivers reminder messages to their destination channel.
package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Notifier sends a reminder message to a chat. chatID is the destination
// identifier in the channel's native format.
type Notifier interface {
	Send(ctx context.Context, chatID, content string) error
}

// TelegramNotifier delivers reminders through the Telegram Bot API.
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
	log *logrus.Logger
}

// NewTelegramNotifier creates a notifier backed by the given bot token.
func NewTelegramNotifier(token string, log *logrus.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	log.WithField("username", bot.Self.UserName).Info("Telegram notifier ready")
	return &TelegramNotifier{bot: bot, log: log}, nil
}

func (n *TelegramNotifier) Send(ctx context.Context, chatID, content string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	msg := tgbotapi.NewMessage(id, "⏰ *Reminder*\n\n"+content)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// NoopNotifier is used when no delivery channel is configured. Every send
// fails, which routes affected reminders through the normal retry and
// pause path instead of silently dropping them.
type NoopNotifier struct{}

func (NoopNotifier) Send(ctx context.Context, chatID, content string) error {
	return fmt.Errorf("no notification channel configured")
}
