// Package telegram contains a minimal Telegram Bot API client covering what
// the dispatcher needs: long-polling updates, sending replies (with optional
// reply keyboards), and downloading message attachments.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Client talks to the Bot API for a single bot token. BaseURL is overridable
// for tests; it defaults to the public endpoint when empty.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://api.telegram.org"
}

// Update is one inbound event from getUpdates. Only message updates are used.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message carries the fields the dispatcher routes on: sender, text, and the
// replied-to message with its attachment and caption.
type Message struct {
	MessageID int64     `json:"message_id"`
	From      *User     `json:"from"`
	Chat      Chat      `json:"chat"`
	Text      string    `json:"text"`
	Caption   string    `json:"caption"`
	ReplyTo   *Message  `json:"reply_to_message"`
	Video     *Video    `json:"video"`
	Document  *Document `json:"document"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// Video is a native video attachment.
type Video struct {
	FileID   string `json:"file_id"`
	MimeType string `json:"mime_type"`
}

// Document is a generic file attachment; MimeType distinguishes videos sent
// as files from everything else.
type Document struct {
	FileID   string `json:"file_id"`
	MimeType string `json:"mime_type"`
}

// File is the getFile result used to resolve a file_id to a download path.
type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// ReplyKeyboardMarkup is a custom reply keyboard shown under the input field.
type ReplyKeyboardMarkup struct {
	Keyboard       [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard,omitempty"`
}

type KeyboardButton struct {
	Text string `json:"text"`
}

// ReplyKeyboardRemove removes a previously shown reply keyboard.
type ReplyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

// apiResponse is the Bot API envelope wrapping every method result.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// call posts params as JSON to a Bot API method and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.base(), c.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s decode: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("%s failed: %s (code %d)", method, env.Description, env.ErrorCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%s result decode: %w", method, err)
		}
	}
	return nil
}

// GetUpdates long-polls for inbound updates after offset. timeoutSeconds is
// the server-side hold; the caller's ctx bounds the whole request.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSeconds,
		"allowed_updates": []string{"message"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendOptions carries the optional fields of sendMessage.
type SendOptions struct {
	ParseMode   string
	ReplyMarkup any // *ReplyKeyboardMarkup or *ReplyKeyboardRemove
}

// SendMessage sends a plain or lightly formatted text reply to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) error {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if opts != nil {
		if opts.ParseMode != "" {
			params["parse_mode"] = opts.ParseMode
		}
		if opts.ReplyMarkup != nil {
			params["reply_markup"] = opts.ReplyMarkup
		}
	}
	return c.call(ctx, "sendMessage", params, nil)
}

// GetFile resolves a file_id to its server-side path for download.
func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	var f File
	err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f)
	return f, err
}

// Download streams the file at filePath (from GetFile) into w.
func (c *Client) Download(ctx context.Context, filePath string, w io.Writer) error {
	url := fmt.Sprintf("%s/file/bot%s/%s", c.base(), c.Token, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("file download: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("file download: unexpected status %d", resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("file download copy: %w", err)
	}
	return nil
}

// Fetch resolves fileID and streams its content into w. It satisfies the
// attachment source contract of the upload pipeline.
func (c *Client) Fetch(ctx context.Context, fileID string, w io.Writer) error {
	f, err := c.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f.FilePath == "" {
		return fmt.Errorf("getFile returned empty file_path for %s", fileID)
	}
	return c.Download(ctx, f.FilePath, w)
}
