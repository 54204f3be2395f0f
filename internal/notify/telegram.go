package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/nhle/mail-digest/internal/metrics"
	"github.com/nhle/mail-digest/internal/model"
)

// maxMessageLen is the Bot API limit for one sendMessage text.
const maxMessageLen = 4096

// Telegram delivers text and documents to a single chat through the
// Bot API.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewTelegram creates a notifier for the bot and chat in cfg.
func NewTelegram(cfg model.TelegramConfig, logger *zap.Logger) *Telegram {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = model.DefaultTelegramBaseURL
	}

	return &Telegram{
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger,
	}
}

// Send posts text when it is non-empty, then uploads filePath when it
// names an existing file and removes the file once the upload succeeds.
// A missing file is skipped. Each failure is logged; a failed text send
// does not prevent the upload. The returned error joins every failure.
func (t *Telegram) Send(ctx context.Context, text, filePath string) error {
	var errs []error

	if text != "" {
		if err := t.sendMessage(ctx, text); err != nil {
			metrics.IncChatSend("text", metrics.StatusFailed)
			t.logger.Error("telegram text delivery failed", zap.Error(err))
			errs = append(errs, err)
		} else {
			metrics.IncChatSend("text", metrics.StatusSuccess)
		}
	}

	if filePath != "" {
		if _, err := os.Stat(filePath); err != nil {
			t.logger.Debug("attachment not found, skipping upload",
				zap.String("path", filePath),
			)
			return errors.Join(errs...)
		}

		if err := t.sendDocument(ctx, filePath); err != nil {
			metrics.IncChatSend("document", metrics.StatusFailed)
			t.logger.Error("telegram document delivery failed",
				zap.String("file", filepath.Base(filePath)),
				zap.Error(err),
			)
			errs = append(errs, err)
		} else {
			metrics.IncChatSend("document", metrics.StatusSuccess)
			t.logger.Info("document sent", zap.String("file", filepath.Base(filePath)))

			if err := os.Remove(filePath); err != nil {
				t.logger.Warn("removing delivered attachment",
					zap.String("path", filePath),
					zap.Error(err),
				)
			}
		}
	}

	return errors.Join(errs...)
}

// sendMessage posts text, split into chunks that fit the Bot API limit.
func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	for _, chunk := range splitText(text, maxMessageLen) {
		payload, err := json.Marshal(sendMessageRequest{
			ChatID: t.chatID,
			Text:   chunk,
		})
		if err != nil {
			return fmt.Errorf("marshaling sendMessage: %w", err)
		}

		if err := t.call(ctx, "sendMessage", "application/json", bytes.NewReader(payload)); err != nil {
			return err
		}
	}
	return nil
}

// sendDocument uploads the file at path as multipart/form-data.
func (t *Telegram) sendDocument(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("chat_id", t.chatID); err != nil {
		return fmt.Errorf("writing chat_id field: %w", err)
	}

	fw, err := w.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("creating document field: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	return t.call(ctx, "sendDocument", w.FormDataContentType(), &body)
}

// call POSTs body to the Bot API method and checks the "ok" envelope.
// Transport errors are stripped of the request URL, which embeds the
// bot token.
func (t *Telegram) call(
	ctx context.Context, method, contentType string, body io.Reader,
) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		// Drop the *url.Error wrapper, which would print the token.
		if inner := errors.Unwrap(err); inner != nil {
			err = inner
		}
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok {
			err = urlErr.Err
		}
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("%s returned %d: %s", method, resp.StatusCode, string(respBody))
	}
	if !result.OK {
		return fmt.Errorf("%s failed (%d): %s", method, result.ErrorCode, result.Description)
	}

	return nil
}

// splitText breaks s into pieces of at most n UTF-16 code units, the
// unit Telegram measures message length in, preferring to cut after a
// newline.
func splitText(s string, n int) []string {
	if utf16Len(s) <= n {
		return []string{s}
	}

	var chunks []string
	runes := []rune(s)
	for len(runes) > 0 {
		end, units := 0, 0
		for end < len(runes) {
			l := utf16.RuneLen(runes[end])
			if l < 0 {
				l = 1
			}
			if units+l > n {
				break
			}
			units += l
			end++
		}
		if end == len(runes) {
			chunks = append(chunks, string(runes))
			break
		}

		cut := max(end, 1)
		for i := end; i > end/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}

// utf16Len counts s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// --- Bot API types ---

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}
