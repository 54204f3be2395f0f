package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nhle/mail-digest/internal/metrics"
	"github.com/nhle/mail-digest/internal/model"
)

const (
	// MinContentLen is the trimmed body length below which no request
	// is made.
	MinContentLen = 10

	// MaxInputLen caps how many characters of a body go into the prompt.
	MaxInputLen = 8000

	// NoContentMessage is returned for bodies shorter than MinContentLen.
	NoContentMessage = "No significant text content found in this email."
)

// Summarizer turns mail bodies into short student-oriented digests
// using the Gemini generateContent API.
type Summarizer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a Summarizer from cfg. Empty model or base URL fall back
// to the package defaults in model.
func New(cfg model.AIConfig, logger *zap.Logger) *Summarizer {
	modelName := cfg.Model
	if modelName == "" {
		modelName = model.DefaultAIModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = model.DefaultAIBaseURL
	}

	return &Summarizer{
		apiKey:  cfg.APIKey,
		model:   modelName,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger,
	}
}

// Summarize returns the formatted summary of body. It never fails:
// short bodies yield NoContentMessage without calling the API, and API
// failures yield a visible "AI Error" placeholder.
func (s *Summarizer) Summarize(ctx context.Context, body string) string {
	if utf8.RuneCountInString(strings.TrimSpace(body)) < MinContentLen {
		metrics.IncSummary(metrics.StatusSkipped)
		return NoContentMessage
	}

	prompt := BuildPrompt(Truncate(body, MaxInputLen))

	text, err := s.generate(ctx, prompt)
	if err != nil {
		metrics.IncSummary(metrics.StatusFailed)
		s.logger.Warn("summarization failed",
			zap.String("model", s.model),
			zap.Error(err),
		)
		return fmt.Sprintf("🤖 AI Error: %v", err)
	}

	metrics.IncSummary(metrics.StatusSuccess)
	return text
}

// Truncate returns the first n characters of s.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// generate makes a single generateContent call and returns the text of
// the first candidate.
func (s *Summarizer) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, s.model)
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok {
			err = urlErr.Err
		}
		return "", fmt.Errorf("calling Gemini API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Candidates) == 0 {
		if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", result.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("empty response")
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response (finish reason %s)", result.Candidates[0].FinishReason)
	}

	return sb.String(), nil
}

// --- Gemini API types ---

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
