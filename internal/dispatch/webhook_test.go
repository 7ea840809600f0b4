package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/normalize"
)

func TestWebhookSender_Deliver(t *testing.T) {
	var got displayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSender(WebhookConfig{URL: srv.URL}, zap.NewNop())

	interaction := true
	d := normalize.Descriptor{
		Title:              "Hi",
		Body:               "B",
		Tag:                "promo",
		RequireInteraction: &interaction,
		Data:               map[string]any{"url": "https://x"},
	}

	if err := s.Deliver(context.Background(), d); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.Action != "show" {
		t.Errorf("action: got %q", got.Action)
	}
	if got.Notification == nil || got.Notification.Title != "Hi" {
		t.Errorf("notification: %+v", got.Notification)
	}
	if got.Notification.RequireInteraction == nil || !*got.Notification.RequireInteraction {
		t.Error("optional fields must travel as-is")
	}
}

func TestWebhookSender_DeliverNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSender(WebhookConfig{URL: srv.URL}, zap.NewNop())

	if err := s.Deliver(context.Background(), normalize.Descriptor{Title: "t"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestWebhookSender_Close(t *testing.T) {
	var got displayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	s := NewWebhookSender(WebhookConfig{URL: srv.URL}, zap.NewNop())

	if err := s.Close(context.Background(), "promo"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got.Action != "close" || got.Tag != "promo" {
		t.Errorf("close request: %+v", got)
	}
	if got.Notification != nil {
		t.Error("close must not carry a notification body")
	}
}
