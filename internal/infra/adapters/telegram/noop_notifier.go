package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"hackathon-ai-jury/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier logs terminal outcomes instead of sending them; used when
// no Telegram credentials are configured.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(log *zerolog.Logger) *NoopNotifier { return &NoopNotifier{log: log} }

func (n *NoopNotifier) NotifyTerminal(ctx context.Context, ownerID, kind, message string) error {
	n.log.Info().Str("owner_id", ownerID).Str("kind", kind).Str("message", message).
		Msg("terminal notification (noop)")
	return nil
}
