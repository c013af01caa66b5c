package adapter

import "context"

// Notifier pushes terminal job/session outcomes to an operator channel.
// Delivery is best-effort; failures are logged, never propagated into
// the job lifecycle.
type Notifier interface {
	NotifyTerminal(ctx context.Context, ownerID, kind, message string) error
}
