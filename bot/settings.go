package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/reel-relay/telegram"
	"github.com/onnwee/reel-relay/telemetry"
)

// awaiting is the per-operator conversation state: which credential field the
// next free-text message should populate.
type awaiting int

const (
	awaitingNone awaiting = iota
	awaitingUsername
	awaitingPassword
)

// Control phrases of the settings conversation. Matched exactly after
// trimming surrounding whitespace, in this order.
const (
	phraseViewVariable = "VIEW VARIABLE"
	phraseSetUsername  = "IG USERNAME"
	phraseSetPassword  = "IG PASSWORD"
	phraseCancel       = "CANCEL"
)

// notSet is rendered for an absent credential field.
const notSet = "Not Set"

// maskedSecret stands in for the stored password when it is set. The value
// itself is never echoed back into the chat.
const maskedSecret = "••••••••"

// handleText drives the settings conversation. Control phrases win over any
// pending capture; otherwise the message text is captured verbatim into the
// awaited field.
func (b *Bot) handleText(ctx context.Context, msg *telegram.Message) {
	text := strings.TrimSpace(msg.Text)
	switch text {
	case phraseViewVariable:
		// Renders the record regardless of pending state, and never mutates it.
		b.handleView(ctx, msg)
	case phraseSetUsername:
		b.setPending(msg.From.ID, awaitingUsername)
		b.send(ctx, msg.Chat.ID, "✏️ Send new IG username:", nil)
	case phraseSetPassword:
		b.setPending(msg.From.ID, awaitingPassword)
		b.send(ctx, msg.Chat.ID, "✏️ Send new IG password:", nil)
	case phraseCancel:
		b.clearPending(msg.From.ID)
		b.send(ctx, msg.Chat.ID, "❎ Cancelled.", &telegram.SendOptions{
			ReplyMarkup: &telegram.ReplyKeyboardRemove{RemoveKeyboard: true},
		})
	default:
		b.handleCapture(ctx, msg, text)
	}
}

func (b *Bot) handleView(ctx context.Context, msg *telegram.Message) {
	cred, _, err := b.Creds.Get(ctx)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Error("credential read failed", slog.Any("err", err), slog.String("component", "settings"))
		b.send(ctx, msg.Chat.ID, "❌ Failed to read settings.", nil)
		return
	}
	username := cred.Username
	if username == "" {
		username = notSet
	}
	password := notSet
	if cred.Password != "" {
		password = maskedSecret
	}
	b.send(ctx, msg.Chat.ID,
		fmt.Sprintf("👤 Username: `%s`\n🔑 Password: `%s`", username, password),
		&telegram.SendOptions{ParseMode: "Markdown"})
}

// handleCapture persists the message text into the awaited field, or reports
// an unrecognized message when nothing is pending.
func (b *Bot) handleCapture(ctx context.Context, msg *telegram.Message, text string) {
	switch b.pending[msg.From.ID] {
	case awaitingUsername:
		if err := b.Creds.SetUsername(ctx, text); err != nil {
			telemetry.LoggerWithCorr(ctx).Error("username write failed", slog.Any("err", err), slog.String("component", "settings"))
			b.send(ctx, msg.Chat.ID, "❌ Failed to save username.", nil)
			return
		}
		telemetry.CredentialWrites.Inc()
		b.clearPending(msg.From.ID)
		b.send(ctx, msg.Chat.ID, "✅ Username saved.", nil)
	case awaitingPassword:
		if err := b.Creds.SetPassword(ctx, text); err != nil {
			telemetry.LoggerWithCorr(ctx).Error("password write failed", slog.Any("err", err), slog.String("component", "settings"))
			b.send(ctx, msg.Chat.ID, "❌ Failed to save password.", nil)
			return
		}
		telemetry.CredentialWrites.Inc()
		b.clearPending(msg.From.ID)
		b.send(ctx, msg.Chat.ID, "✅ Password saved.", nil)
	default:
		b.send(ctx, msg.Chat.ID, "❓ Unknown command.", nil)
	}
}

func (b *Bot) setPending(userID int64, state awaiting) {
	b.pending[userID] = state
	b.publishPendingGauge()
}

func (b *Bot) clearPending(userID int64) {
	delete(b.pending, userID)
	b.publishPendingGauge()
}

func (b *Bot) publishPendingGauge() {
	telemetry.SetPendingCaptures(len(b.pending))
}
