package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"hackathon-ai-jury/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*Notifier)(nil)

// Notifier pushes terminal job/session outcomes to an operator chat.
// Send-only: the jury never reads Telegram updates.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

func NewNotifier(token string, chatID int64, log *zerolog.Logger) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	if chatID == 0 {
		return nil, errors.New("telegram: chat id not configured")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Notifier{bot: bot, chatID: chatID, log: log}, nil
}

func (n *Notifier) NotifyTerminal(ctx context.Context, ownerID, kind, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := fmt.Sprintf("[%s] %s\n%s", kind, ownerID, message)
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	n.log.Debug().Str("owner_id", ownerID).Str("kind", kind).Msg("terminal notification sent")
	return nil
}
