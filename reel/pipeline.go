// Package reel implements the upload pipeline: resolve the replied-to
// attachment, materialize it into a scratch file, hand it to an authenticated
// Instagram session, and remove the scratch file on every exit path.
package reel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/reel-relay/instagram"
	"github.com/onnwee/reel-relay/telemetry"
)

// DefaultCaption is used when the replied-to message has no caption of its own.
const DefaultCaption = "Uploaded via Telegram Bot"

// Media is one attachment reference taken from the replied-to message.
type Media struct {
	FileID   string
	MimeType string
}

// Request describes one upload attempt, derived from the replied-to message.
type Request struct {
	// MessageID of the source message; names the scratch file deterministically.
	MessageID int64
	// Video is the native video attachment, if any.
	Video *Media
	// Document is a generic attachment; accepted when its mime type has the
	// video/ prefix.
	Document *Media
	// Caption for the clip; DefaultCaption when empty.
	Caption string
}

// media validates the attachment shape. Native video wins; a document is
// accepted only with a video mime type. Anything else is ErrNotAVideo.
func (r *Request) media() (*Media, error) {
	if r.Video != nil {
		return r.Video, nil
	}
	if r.Document != nil && strings.HasPrefix(r.Document.MimeType, "video/") {
		return r.Document, nil
	}
	return nil, ErrNotAVideo
}

// AttachmentSource fetches an attachment's bytes into w (for tests/mocks).
type AttachmentSource interface {
	Fetch(ctx context.Context, fileID string, w io.Writer) error
}

// Session is an authenticated remote session able to upload one clip.
type Session interface {
	UploadClip(ctx context.Context, path, caption string) error
}

// SessionFactory opens an authenticated session from stored credentials.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// Notifier delivers interim progress text to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// instagramSessions adapts the concrete Instagram factory to SessionFactory.
type instagramSessions struct{ f *instagram.Factory }

func (s instagramSessions) Open(ctx context.Context) (Session, error) {
	sess, err := s.f.Open(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// NewInstagramSessions wraps an Instagram factory as the pipeline's session
// factory. Factory errors pass through unchanged.
func NewInstagramSessions(f *instagram.Factory) SessionFactory {
	return instagramSessions{f: f}
}

// Pipeline performs uploads. DataDir holds the scratch files.
type Pipeline struct {
	Files    AttachmentSource
	Sessions SessionFactory
	DataDir  string
}

// scratch is the transient local copy of an attachment. Release removes it;
// it runs on every exit path of Upload once the file exists.
type scratch struct {
	path string
}

func (s *scratch) Release() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("scratch file cleanup failed", slog.String("path", s.path), slog.Any("err", err))
	}
}

// ScratchPath returns the scratch file location for a source message id.
// Exposed so tests can assert cleanup.
func (p *Pipeline) ScratchPath(messageID int64) string {
	return filepath.Join(p.DataDir, fmt.Sprintf("%d.mp4", messageID))
}

// Upload runs the whole pipeline for one request. Failure kinds:
// ErrNotAVideo (no I/O performed), ErrDownloadFailed, the instagram factory
// errors unchanged, and ErrUploadFailed. The scratch file is gone afterward
// regardless of outcome.
func (p *Pipeline) Upload(ctx context.Context, req Request, notify Notifier) error {
	media, err := req.media()
	if err != nil {
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, "reel", "pipeline.upload",
		attribute.Int64("message_id", req.MessageID))
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.Int64("message_id", req.MessageID), slog.String("component", "reel_pipeline"))

	sc, err := p.download(ctx, media.FileID, req.MessageID)
	if err != nil {
		telemetry.DownloadsFailed.Inc()
		telemetry.RecordError(span, err)
		logger.Error("download failed", slog.Any("err", err))
		return err
	}
	defer sc.Release()
	logger.Info("attachment downloaded", slog.String("path", sc.path))

	telemetry.UploadsStarted.Inc()
	if notify != nil {
		// The remote call can take a while; tell the operator we got this far.
		if err := notify.Notify(ctx, "⏳ Uploading..."); err != nil {
			logger.Warn("progress notification failed", slog.Any("err", err))
		}
	}

	sess, err := p.Sessions.Open(ctx)
	if err != nil {
		telemetry.UploadsFailed.Inc()
		telemetry.RecordError(span, err)
		logger.Error("session open failed", slog.Any("err", err))
		return err
	}

	caption := req.Caption
	if caption == "" {
		caption = DefaultCaption
	}
	var uploadErr error
	dur := telemetry.TimeFunc(telemetry.UploadDuration, func() {
		uploadErr = sess.UploadClip(ctx, sc.path, caption)
	})
	if uploadErr != nil {
		telemetry.UploadsFailed.Inc()
		telemetry.RecordError(span, uploadErr)
		logger.Error("clip upload failed", slog.Any("err", uploadErr), slog.Duration("upload_duration", dur))
		return fmt.Errorf("%w: %s", ErrUploadFailed, uploadErr.Error())
	}

	telemetry.UploadsSucceeded.Inc()
	telemetry.SetSpanSuccess(span)
	logger.Info("clip uploaded", slog.Duration("upload_duration", dur))
	return nil
}

// download materializes the attachment into the scratch file. On any failure
// the partial file is removed before returning.
func (p *Pipeline) download(ctx context.Context, fileID string, messageID int64) (*scratch, error) {
	if err := os.MkdirAll(p.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir data dir: %v", ErrDownloadFailed, err)
	}
	path := p.ScratchPath(messageID)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create scratch file: %v", ErrDownloadFailed, err)
	}
	sc := &scratch{path: path}
	var fetchErr error
	telemetry.TimeFunc(telemetry.DownloadDuration, func() {
		fetchErr = p.Files.Fetch(ctx, fileID, f)
	})
	if closeErr := f.Close(); fetchErr == nil {
		fetchErr = closeErr
	}
	if fetchErr != nil {
		sc.Release()
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, fetchErr)
	}
	return sc, nil
}
