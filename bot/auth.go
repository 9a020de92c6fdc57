package bot

import (
	"context"
	"log/slog"

	"github.com/onnwee/reel-relay/telegram"
	"github.com/onnwee/reel-relay/telemetry"
)

// Decision is the result of the authorization gate.
type Decision int

const (
	Allowed Decision = iota
	Denied
)

// Authorize compares the sender against the configured operator id. It
// consults no other state and has no side effects.
func (b *Bot) Authorize(u *telegram.User) Decision {
	if u != nil && u.ID == b.OwnerID {
		return Allowed
	}
	return Denied
}

// guard runs handler only for the operator. On Denied it sends the refusal
// and stops; the wrapped handler never runs and no state is touched.
func (b *Bot) guard(ctx context.Context, msg *telegram.Message, handler func(context.Context, *telegram.Message)) {
	if b.Authorize(msg.From) == Denied {
		telemetry.UnauthorizedCommands.Inc()
		telemetry.LoggerWithCorr(ctx).Info("unauthorized command refused",
			slog.Int64("sender_id", msg.From.ID), slog.String("component", "dispatcher"))
		b.send(ctx, msg.Chat.ID, "❌ You are not authorized.", nil)
		return
	}
	handler(ctx, msg)
}
