package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testNote() Notification {
	return Notification{
		Bucket:        time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		Source:        "openhab",
		Reason:        "forecast fell back to default profile",
		Fallback:      "default",
		ZeroIntervals: 0,
		IntervalCount: 48,
		Channels:      []string{"telegram"},
	}
}

func TestTelegramNotifySendsMessage(t *testing.T) {
	var gotPath string
	var payload map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bot-token", "chat-42", srv.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/botbot-token/sendMessage" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if payload["chat_id"] != "chat-42" {
		t.Fatalf("unexpected chat id %q", payload["chat_id"])
	}
	text := payload["text"]
	if !strings.Contains(text, "forecast fell back to default profile") {
		t.Fatalf("reason missing from message: %q", text)
	}
	if !strings.Contains(text, "Fallback: default") {
		t.Fatalf("fallback missing from message: %q", text)
	}
}

func TestTelegramNotifyRejectsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bot-token", "chat-42", srv.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("expected error when telegram reports ok=false")
	}
}

func TestTelegramNotifyRejectsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bot-token", "chat-42", srv.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}
