// Package bot contains the command dispatcher: the long-poll loop, the
// operator authorization gate, the credential settings conversation, and the
// handoff into the upload pipeline.
package bot

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/reel-relay/db"
	"github.com/onnwee/reel-relay/instagram"
	"github.com/onnwee/reel-relay/reel"
	"github.com/onnwee/reel-relay/telegram"
	"github.com/onnwee/reel-relay/telemetry"
)

// Messenger is the slice of the Telegram client the dispatcher needs.
type Messenger interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) error
}

// CredentialStore reads and writes the stored Instagram account record.
type CredentialStore interface {
	Get(ctx context.Context) (db.Credential, bool, error)
	SetUsername(ctx context.Context, username string) error
	SetPassword(ctx context.Context, password string) error
}

// UploadPipeline runs one upload attempt end to end.
type UploadPipeline interface {
	Upload(ctx context.Context, req reel.Request, notify reel.Notifier) error
}

// Bot routes inbound updates. Exactly one Telegram user id (OwnerID) may
// issue privileged commands; /start is the only public surface.
type Bot struct {
	TG       Messenger
	Creds    CredentialStore
	Pipeline UploadPipeline
	OwnerID  int64

	// DB is used for kv bookkeeping only; nil disables it (tests).
	DB *sql.DB

	// PollTimeout is the server-side getUpdates hold in seconds.
	PollTimeout int

	// pending maps an operator id to the credential field the next free-text
	// message should populate. Touched only from the dispatch loop.
	pending map[int64]awaiting
}

// New builds a dispatcher for a single owner.
func New(tg Messenger, creds CredentialStore, pipeline UploadPipeline, ownerID int64) *Bot {
	return &Bot{
		TG:          tg,
		Creds:       creds,
		Pipeline:    pipeline,
		OwnerID:     ownerID,
		PollTimeout: 30,
		pending:     make(map[int64]awaiting),
	}
}

// Run long-polls for updates until ctx is cancelled. Handlers run inline so
// the operator's updates are processed in arrival order.
func (b *Bot) Run(ctx context.Context) {
	slog.Info("bot dispatcher starting", slog.Int64("owner_id", b.OwnerID))
	var offset int64
	for {
		select {
		case <-ctx.Done():
			slog.Info("bot dispatcher stopped")
			return
		default:
		}
		updates, err := b.TG.GetUpdates(ctx, offset, b.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("bot dispatcher stopped")
				return
			}
			slog.Warn("getUpdates failed", slog.Any("err", err), slog.String("component", "dispatcher"))
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.Dispatch(ctx, u)
		}
	}
}

// Dispatch routes one update: slash commands to their handlers, free text to
// the settings conversation. Everything except /start sits behind the gate.
func (b *Bot) Dispatch(ctx context.Context, u telegram.Update) {
	telemetry.UpdatesReceived.Inc()
	msg := u.Message
	if msg == nil || msg.From == nil {
		return
	}
	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	b.recordKV(ctx, "last_update_at", time.Now().UTC().Format(time.RFC3339))

	text := msg.Text
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		// Strip the @botname suffix Telegram appends in groups.
		cmd, _, _ = strings.Cut(cmd, "@")
		switch cmd {
		case "/start":
			b.handleStart(ctx, msg)
		case "/upload":
			b.guard(ctx, msg, b.handleUpload)
		case "/settings":
			b.guard(ctx, msg, b.handleSettings)
		case "/cancel":
			b.guard(ctx, msg, b.handleCancel)
		default:
			// Unknown commands are left to the platform; nothing to do.
		}
		return
	}
	if text != "" {
		b.guard(ctx, msg, b.handleText)
	}
}

// handleStart is the public welcome response; it bypasses the gate.
func (b *Bot) handleStart(ctx context.Context, msg *telegram.Message) {
	b.send(ctx, msg.Chat.ID, "👋 Welcome to the Instagram Reels Uploader Bot!", nil)
}

// handleUpload resolves the replied-to attachment and runs the pipeline.
func (b *Bot) handleUpload(ctx context.Context, msg *telegram.Message) {
	reply := msg.ReplyTo
	if reply == nil {
		b.send(ctx, msg.Chat.ID, "⚠️ Reply to a video/document to upload.", nil)
		return
	}

	req := reel.Request{MessageID: reply.MessageID, Caption: reply.Caption}
	if reply.Video != nil {
		req.Video = &reel.Media{FileID: reply.Video.FileID, MimeType: reply.Video.MimeType}
	}
	if reply.Document != nil {
		req.Document = &reel.Media{FileID: reply.Document.FileID, MimeType: reply.Document.MimeType}
	}

	err := b.Pipeline.Upload(ctx, req, chatNotifier{bot: b, chatID: msg.Chat.ID})
	if err != nil {
		b.recordKV(ctx, "last_upload_at", time.Now().UTC().Format(time.RFC3339))
		b.recordKV(ctx, "last_upload_result", err.Error())
		b.send(ctx, msg.Chat.ID, uploadFailureText(err), nil)
		return
	}
	b.recordKV(ctx, "last_upload_at", time.Now().UTC().Format(time.RFC3339))
	b.recordKV(ctx, "last_upload_result", "ok")
	telemetry.LoggerWithCorr(ctx).Info("reel uploaded", slog.Int64("source_message_id", reply.MessageID), slog.String("component", "dispatcher"))
	b.send(ctx, msg.Chat.ID, "✅ Uploaded successfully!", nil)
}

// uploadFailureText maps a pipeline failure to the operator-facing reply.
// Remote messages are surfaced verbatim; there is no automatic retry.
func uploadFailureText(err error) string {
	var authErr *instagram.AuthError
	switch {
	case errors.Is(err, reel.ErrNotAVideo):
		return "⚠️ The replied message is not a valid video."
	case errors.Is(err, instagram.ErrCredentialsMissing):
		return "❌ Upload failed: Instagram credentials not set."
	case errors.As(err, &authErr):
		return "❌ Upload failed: " + authErr.Error()
	default:
		return "❌ Upload failed: " + err.Error()
	}
}

// handleSettings shows the fixed control-phrase menu. It performs no state
// transition itself.
func (b *Bot) handleSettings(ctx context.Context, msg *telegram.Message) {
	kb := &telegram.ReplyKeyboardMarkup{
		Keyboard: [][]telegram.KeyboardButton{
			{{Text: phraseViewVariable}},
			{{Text: phraseSetUsername}, {Text: phraseSetPassword}},
			{{Text: phraseCancel}},
		},
		ResizeKeyboard: true,
	}
	b.send(ctx, msg.Chat.ID, "⚙️ IG Settings:", &telegram.SendOptions{ReplyMarkup: kb})
}

// handleCancel clears any pending capture and removes the keyboard.
func (b *Bot) handleCancel(ctx context.Context, msg *telegram.Message) {
	b.clearPending(msg.From.ID)
	b.send(ctx, msg.Chat.ID, "❎ Operation cancelled.", &telegram.SendOptions{
		ReplyMarkup: &telegram.ReplyKeyboardRemove{RemoveKeyboard: true},
	})
}

// chatNotifier delivers pipeline progress text into the originating chat.
type chatNotifier struct {
	bot    *Bot
	chatID int64
}

func (n chatNotifier) Notify(ctx context.Context, text string) error {
	return n.bot.TG.SendMessage(ctx, n.chatID, text, nil)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) {
	if err := b.TG.SendMessage(ctx, chatID, text, opts); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("send message failed", slog.Int64("chat_id", chatID), slog.Any("err", err), slog.String("component", "dispatcher"))
	}
}

func (b *Bot) recordKV(ctx context.Context, key, value string) {
	if b.DB == nil {
		return
	}
	if err := db.SetKV(ctx, b.DB, key, value); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("kv bookkeeping failed", slog.String("key", key), slog.Any("err", err))
	}
}
