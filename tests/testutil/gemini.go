package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// GeminiServer is a fake generateContent endpoint. It records every
// prompt it receives and answers with Reply, or with Status and an
// error body when Status is not 200.
type GeminiServer struct {
	*httptest.Server

	APIKey string

	mu      sync.Mutex
	prompts []string
	models  []string
	reply   string
	status  int
}

// NewGeminiServer starts a fake that accepts apiKey and replies with
// reply. It is closed when the test ends.
func NewGeminiServer(t *testing.T, apiKey, reply string) *GeminiServer {
	t.Helper()

	g := &GeminiServer{APIKey: apiKey, reply: reply, status: http.StatusOK}
	g.Server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.Close)

	return g
}

// Fail makes subsequent requests return status with a Google-style
// error body.
func (g *GeminiServer) Fail(status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
}

// Prompts returns the prompts received so far.
func (g *GeminiServer) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// Models returns the model names requested so far.
func (g *GeminiServer) Models() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.models...)
}

func (g *GeminiServer) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Header.Get("x-goog-api-key") != g.APIKey {
		writeGeminiError(w, http.StatusForbidden, "API key not valid.")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/models/")
	modelName, ok := strings.CutSuffix(name, ":generateContent")
	if r.Method != http.MethodPost || !ok {
		writeGeminiError(w, http.StatusNotFound, "not found")
		return
	}

	var req struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGeminiError(w, http.StatusBadRequest, err.Error())
		return
	}

	var prompt strings.Builder
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			prompt.WriteString(p.Text)
		}
	}

	g.mu.Lock()
	g.prompts = append(g.prompts, prompt.String())
	g.models = append(g.models, modelName)
	status, reply := g.status, g.reply
	g.mu.Unlock()

	if status != http.StatusOK {
		writeGeminiError(w, status, "quota exceeded")
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": reply}},
			},
			"finishReason": "STOP",
		}},
	})
}

func writeGeminiError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
			"status":  http.StatusText(status),
		},
	})
}
