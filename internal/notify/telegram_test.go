package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestTelegramSender(url string) *TelegramSender {
	s := NewTelegramSender("test-token", "42")
	s.baseURL = url
	return s
}

func TestTelegramSend(t *testing.T) {
	var got telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottest-token/sendMessage" {
			t.Errorf("path = %s, want /bottest-token/sendMessage", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	s := newTestTelegramSender(srv.URL)
	if err := s.Send(context.Background(), "Trade executed", "a -> b, benefit 200000"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.ChatID != "42" {
		t.Fatalf("chat_id = %s, want 42", got.ChatID)
	}
	if !strings.HasPrefix(got.Text, "*Trade executed*\n") {
		t.Fatalf("text = %q, want bold title prefix", got.Text)
	}
	if got.ParseMode != "Markdown" {
		t.Fatalf("parse_mode = %s, want Markdown", got.ParseMode)
	}
}

func TestTelegramSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok": false, "description": "Unauthorized"}`))
	}))
	defer srv.Close()

	s := newTestTelegramSender(srv.URL)
	err := s.Send(context.Background(), "title", "message")
	if err == nil {
		t.Fatal("Send succeeded against a rejecting API")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("error = %v, want status code included", err)
	}
}
