package reel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/reel-relay/instagram"
	"github.com/onnwee/reel-relay/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	os.Exit(m.Run())
}

type fakeFiles struct {
	content string
	err     error
	calls   int
}

func (f *fakeFiles) Fetch(ctx context.Context, fileID string, w io.Writer) error {
	f.calls++
	if f.err != nil {
		// Partial write before failing, to exercise cleanup of partial files.
		_, _ = io.WriteString(w, "partial")
		return f.err
	}
	_, err := io.WriteString(w, f.content)
	return err
}

type fakeSession struct {
	path, caption string
	err           error
}

func (s *fakeSession) UploadClip(ctx context.Context, path, caption string) error {
	s.path, s.caption = path, caption
	return s.err
}

type fakeFactory struct {
	sess  *fakeSession
	err   error
	calls int
}

func (f *fakeFactory) Open(ctx context.Context) (Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

type fakeNotifier struct {
	texts []string
}

func (n *fakeNotifier) Notify(ctx context.Context, text string) error {
	n.texts = append(n.texts, text)
	return nil
}

func newPipeline(t *testing.T, files *fakeFiles, factory *fakeFactory) *Pipeline {
	t.Helper()
	return &Pipeline{Files: files, Sessions: factory, DataDir: t.TempDir()}
}

func TestUploadRejectsNonVideo(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"no attachment", Request{MessageID: 1}},
		{"pdf document", Request{MessageID: 2, Document: &Media{FileID: "d", MimeType: "application/pdf"}}},
		{"image document", Request{MessageID: 3, Document: &Media{FileID: "d", MimeType: "image/png"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := &fakeFiles{}
			factory := &fakeFactory{sess: &fakeSession{}}
			p := newPipeline(t, files, factory)

			err := p.Upload(context.Background(), tt.req, nil)
			require.ErrorIs(t, err, ErrNotAVideo)
			assert.Zero(t, files.calls, "no download should happen")
			assert.Zero(t, factory.calls, "no session should be opened")
			assert.NoFileExists(t, p.ScratchPath(tt.req.MessageID))
		})
	}
}

func TestUploadSuccess(t *testing.T) {
	files := &fakeFiles{content: "video-bytes"}
	sess := &fakeSession{}
	factory := &fakeFactory{sess: sess}
	p := newPipeline(t, files, factory)
	notifier := &fakeNotifier{}

	req := Request{MessageID: 42, Video: &Media{FileID: "abc", MimeType: "video/mp4"}, Caption: "trip"}
	err := p.Upload(context.Background(), req, notifier)
	require.NoError(t, err)

	assert.Equal(t, p.ScratchPath(42), sess.path)
	assert.Equal(t, "trip", sess.caption)
	require.Len(t, notifier.texts, 1, "one interim notification before the remote call")
	assert.NoFileExists(t, p.ScratchPath(42), "scratch file must be removed after success")
}

func TestUploadDefaultCaption(t *testing.T) {
	sess := &fakeSession{}
	p := newPipeline(t, &fakeFiles{content: "v"}, &fakeFactory{sess: sess})

	req := Request{MessageID: 7, Video: &Media{FileID: "abc"}}
	require.NoError(t, p.Upload(context.Background(), req, nil))
	assert.Equal(t, DefaultCaption, sess.caption)
}

func TestUploadVideoDocumentAccepted(t *testing.T) {
	sess := &fakeSession{}
	p := newPipeline(t, &fakeFiles{content: "v"}, &fakeFactory{sess: sess})

	req := Request{MessageID: 8, Document: &Media{FileID: "doc", MimeType: "video/quicktime"}}
	require.NoError(t, p.Upload(context.Background(), req, nil))
	assert.NotEmpty(t, sess.path)
}

func TestUploadDownloadFailureCleansUpPartialFile(t *testing.T) {
	files := &fakeFiles{err: fmt.Errorf("connection reset")}
	factory := &fakeFactory{sess: &fakeSession{}}
	p := newPipeline(t, files, factory)

	req := Request{MessageID: 9, Video: &Media{FileID: "abc"}}
	err := p.Upload(context.Background(), req, nil)
	require.ErrorIs(t, err, ErrDownloadFailed)
	assert.Zero(t, factory.calls, "no session should be opened after a failed download")
	assert.NoFileExists(t, p.ScratchPath(9), "partial scratch file must be removed")
}

func TestUploadCredentialsMissingPropagatesAndCleansUp(t *testing.T) {
	factory := &fakeFactory{err: instagram.ErrCredentialsMissing}
	p := newPipeline(t, &fakeFiles{content: "v"}, factory)

	req := Request{MessageID: 10, Video: &Media{FileID: "abc"}}
	err := p.Upload(context.Background(), req, nil)
	require.ErrorIs(t, err, instagram.ErrCredentialsMissing, "factory failures propagate unchanged")
	assert.NoFileExists(t, p.ScratchPath(10), "scratch file absent after session open failure")
}

func TestUploadRemoteFailureWrappedAndCleansUp(t *testing.T) {
	sess := &fakeSession{err: errors.New("Transcode failed")}
	p := newPipeline(t, &fakeFiles{content: "v"}, &fakeFactory{sess: sess})
	notifier := &fakeNotifier{}

	req := Request{MessageID: 11, Video: &Media{FileID: "abc"}}
	err := p.Upload(context.Background(), req, notifier)
	require.ErrorIs(t, err, ErrUploadFailed)
	assert.Contains(t, err.Error(), "Transcode failed", "remote message carried verbatim")
	assert.Len(t, notifier.texts, 1)
	assert.NoFileExists(t, p.ScratchPath(11), "scratch file removed even when the remote call fails")
}

func TestUploadAuthRejectedPropagates(t *testing.T) {
	factory := &fakeFactory{err: &instagram.AuthError{Reason: "bad password"}}
	p := newPipeline(t, &fakeFiles{content: "v"}, factory)

	req := Request{MessageID: 12, Video: &Media{FileID: "abc"}}
	err := p.Upload(context.Background(), req, nil)
	var authErr *instagram.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "bad password", authErr.Reason)
}
