package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// SentDocument is one sendDocument call seen by TelegramServer.
type SentDocument struct {
	ChatID   string
	Filename string
	Content  []byte
}

// TelegramServer is a fake Bot API recording sendMessage and
// sendDocument calls for one bot token.
type TelegramServer struct {
	*httptest.Server

	Token string

	// OnDocument, when set, runs while a sendDocument request is being
	// handled, before the response is written.
	OnDocument func(filename string)

	mu          sync.Mutex
	texts       []string
	chatIDs     []string
	documents   []SentDocument
	failText    bool
	failDocText string
}

// NewTelegramServer starts a fake Bot API for token. It is closed when
// the test ends.
func NewTelegramServer(t *testing.T, token string) *TelegramServer {
	t.Helper()

	s := &TelegramServer{Token: token}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)

	return s
}

// FailText makes sendMessage answer with an API error.
func (s *TelegramServer) FailText() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failText = true
}

// FailDocuments makes sendDocument answer with an API error carrying
// description.
func (s *TelegramServer) FailDocuments(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDocText = description
}

// Texts returns the message texts received so far.
func (s *TelegramServer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// ChatIDs returns the chat_id of every sendMessage call.
func (s *TelegramServer) ChatIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chatIDs...)
}

// Documents returns the documents received so far.
func (s *TelegramServer) Documents() []SentDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentDocument(nil), s.documents...)
}

func (s *TelegramServer) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	prefix := "/bot" + s.Token + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeTelegram(w, http.StatusUnauthorized, false, "Unauthorized")
		return
	}

	switch strings.TrimPrefix(r.URL.Path, prefix) {
	case "sendMessage":
		s.handleMessage(w, r)
	case "sendDocument":
		s.handleDocument(w, r)
	default:
		writeTelegram(w, http.StatusNotFound, false, "Not Found: method not found")
	}
}

func (s *TelegramServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTelegram(w, http.StatusBadRequest, false, "Bad Request: "+err.Error())
		return
	}

	s.mu.Lock()
	fail := s.failText
	if !fail {
		s.texts = append(s.texts, req.Text)
		s.chatIDs = append(s.chatIDs, req.ChatID)
	}
	s.mu.Unlock()

	if fail {
		writeTelegram(w, http.StatusBadRequest, false, "Bad Request: chat not found")
		return
	}
	writeTelegram(w, http.StatusOK, true, "")
}

func (s *TelegramServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeTelegram(w, http.StatusBadRequest, false, "Bad Request: "+err.Error())
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		writeTelegram(w, http.StatusBadRequest, false, "Bad Request: there is no document in the request")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeTelegram(w, http.StatusBadRequest, false, "Bad Request: "+err.Error())
		return
	}

	if s.OnDocument != nil {
		s.OnDocument(header.Filename)
	}

	s.mu.Lock()
	failDesc := s.failDocText
	if failDesc == "" {
		s.documents = append(s.documents, SentDocument{
			ChatID:   r.FormValue("chat_id"),
			Filename: header.Filename,
			Content:  content,
		})
	}
	s.mu.Unlock()

	if failDesc != "" {
		writeTelegram(w, http.StatusBadRequest, false, failDesc)
		return
	}
	writeTelegram(w, http.StatusOK, true, "")
}

func writeTelegram(w http.ResponseWriter, status int, ok bool, description string) {
	w.WriteHeader(status)
	body := map[string]any{"ok": ok}
	if ok {
		body["result"] = map[string]any{"message_id": 1}
	} else {
		body["error_code"] = status
		body["description"] = description
	}
	_ = json.NewEncoder(w).Encode(body)
}
