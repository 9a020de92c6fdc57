// Package instagram contains a minimal client for the Instagram private web
// API, covering the two calls the bot needs: logging in with the stored
// account credentials and uploading a video as a clip.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrCredentialsMissing is returned by Open when either credential field has
// not been captured yet. No network I/O happens in that case.
var ErrCredentialsMissing = errors.New("instagram credentials not set")

// AuthError is a login rejection from the remote service, carrying its
// message verbatim so the operator sees what Instagram said.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "instagram login rejected: " + e.Reason
}

// CredentialSource supplies the current account credentials. Empty fields
// mean "not set".
type CredentialSource interface {
	Credentials(ctx context.Context) (username, password string, err error)
}

// Factory builds authenticated sessions from the stored credentials. It
// performs no retries; a failed login is surfaced to the caller as-is.
type Factory struct {
	Creds      CredentialSource
	BaseURL    string
	HTTPClient *http.Client
}

func (f *Factory) http() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

func (f *Factory) base() string {
	if f.BaseURL != "" {
		return f.BaseURL
	}
	return "https://i.instagram.com"
}

// loginResponse is the subset of the login reply we care about.
type loginResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Open reads the current credentials and authenticates against the service.
// It fails with ErrCredentialsMissing before any I/O when a field is unset,
// and with *AuthError when the remote rejects the login.
func (f *Factory) Open(ctx context.Context) (*Session, error) {
	username, password, err := f.Creds.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if username == "" || password == "" {
		return nil, ErrCredentialsMissing
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.base()+"/api/v1/accounts/login/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := f.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("instagram login: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("instagram login decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		reason := body.Message
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &AuthError{Reason: reason}
	}

	sessionID := ""
	for _, c := range resp.Cookies() {
		if c.Name == "sessionid" {
			sessionID = c.Value
		}
	}
	return &Session{
		client:    f.http(),
		baseURL:   f.base(),
		username:  username,
		sessionID: sessionID,
	}, nil
}

// Session is an authenticated Instagram session bound to one account.
type Session struct {
	client    *http.Client
	baseURL   string
	username  string
	sessionID string
}

// Username returns the account the session is logged in as.
func (s *Session) Username() string { return s.username }

// UploadClip uploads the video file at path as a clip with the given caption.
// Any remote failure is returned with the service's message included.
func (s *Session) UploadClip(ctx context.Context, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open video file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close video file", slog.Any("err", err))
		}
	}()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("video", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.WriteField("caption", caption)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/api/v1/clips/upload/", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if s.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: s.sessionID})
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("clip upload: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("clip upload decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		msg := body.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("clip upload rejected: %s", msg)
	}
	return nil
}
