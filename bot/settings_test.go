package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatch(b *Bot, text string) {
	b.Dispatch(context.Background(), message(ownerID, text))
}

func TestViewVariableRendersSentinels(t *testing.T) {
	b, tg, _, _ := newTestBot()
	dispatch(b, "VIEW VARIABLE")

	require.Len(t, tg.sent, 1)
	assert.Equal(t, "👤 Username: `Not Set`\n🔑 Password: `Not Set`", tg.sent[0].text)
	require.NotNil(t, tg.sent[0].opts)
	assert.Equal(t, "Markdown", tg.sent[0].opts.ParseMode)
	assert.Empty(t, b.pending, "view must not mutate conversation state")
}

func TestUsernameCaptureRoundTrip(t *testing.T) {
	b, tg, creds, _ := newTestBot()

	dispatch(b, "IG USERNAME")
	assert.Equal(t, "✏️ Send new IG username:", tg.lastText(t))
	assert.Equal(t, awaitingUsername, b.pending[ownerID])

	dispatch(b, "alice")
	assert.Equal(t, "✅ Username saved.", tg.lastText(t))
	assert.Equal(t, "alice", creds.cred.Username)
	assert.NotContains(t, b.pending, ownerID, "capture must reset state")

	dispatch(b, "VIEW VARIABLE")
	assert.Equal(t, "👤 Username: `alice`\n🔑 Password: `Not Set`", tg.lastText(t))
}

func TestPasswordCaptureIsMaskedOnView(t *testing.T) {
	b, tg, creds, _ := newTestBot()

	dispatch(b, "IG PASSWORD")
	assert.Equal(t, awaitingPassword, b.pending[ownerID])
	dispatch(b, "hunter2")
	assert.Equal(t, "✅ Password saved.", tg.lastText(t))
	assert.Equal(t, "hunter2", creds.cred.Password)

	dispatch(b, "VIEW VARIABLE")
	view := tg.lastText(t)
	assert.NotContains(t, view, "hunter2", "stored password must never be echoed back")
	assert.Equal(t, "👤 Username: `Not Set`\n🔑 Password: `"+maskedSecret+"`", view)
}

func TestViewVariableWinsOverPendingCapture(t *testing.T) {
	b, tg, creds, _ := newTestBot()

	dispatch(b, "IG PASSWORD")
	dispatch(b, "VIEW VARIABLE")
	assert.Contains(t, tg.lastText(t), "Username:", "view must render, not be captured")
	assert.Empty(t, creds.cred.Password, "control phrase must not be stored as a value")
	assert.Equal(t, awaitingPassword, b.pending[ownerID], "view leaves the pending capture in place")

	dispatch(b, "pw-after-view")
	assert.Equal(t, "pw-after-view", creds.cred.Password)
}

func TestControlPhraseCancelWinsOverCapture(t *testing.T) {
	b, tg, creds, _ := newTestBot()

	dispatch(b, "IG USERNAME")
	dispatch(b, "CANCEL")
	assert.Equal(t, "❎ Cancelled.", tg.lastText(t))
	assert.Empty(t, creds.cred.Username, "CANCEL must not be captured as the username")
	assert.NotContains(t, b.pending, ownerID)
}

func TestCancelIdempotent(t *testing.T) {
	b, tg, _, _ := newTestBot()
	dispatch(b, "CANCEL")
	assert.Equal(t, "❎ Cancelled.", tg.lastText(t))
	assert.NotContains(t, b.pending, ownerID)

	dispatch(b, "CANCEL")
	assert.Equal(t, "❎ Cancelled.", tg.lastText(t), "cancel with nothing pending still acknowledges")
}

func TestUnrecognizedTextWithoutPending(t *testing.T) {
	b, tg, creds, _ := newTestBot()
	dispatch(b, "what is this")
	assert.Equal(t, "❓ Unknown command.", tg.lastText(t))
	assert.Zero(t, creds.setCalls)
	assert.Empty(t, b.pending)
}

func TestCaptureTrimsSurroundingWhitespace(t *testing.T) {
	b, _, creds, _ := newTestBot()
	dispatch(b, "IG USERNAME")
	dispatch(b, "  alice  ")
	assert.Equal(t, "alice", creds.cred.Username)
}

func TestControlPhrasesMatchedAfterTrim(t *testing.T) {
	b, tg, _, _ := newTestBot()
	dispatch(b, "  VIEW VARIABLE  ")
	assert.Contains(t, tg.lastText(t), "Username:")
}

func TestWriteFailureKeepsPendingReply(t *testing.T) {
	b, tg, creds, _ := newTestBot()
	creds.failWrite = assert.AnError

	dispatch(b, "IG USERNAME")
	dispatch(b, "alice")
	assert.Equal(t, "❌ Failed to save username.", tg.lastText(t))
}
