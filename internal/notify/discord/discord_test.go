package discord

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestSendPostsPayload(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewSender(srv.Client(), zerolog.Nop())
	payload := WebhookPayload{
		Username: "PlexBot",
		Embeds:   []Embed{{Title: "Test", Color: ColorInfo}},
	}
	if err := sender.Send(context.Background(), srv.URL, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got WebhookPayload
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	if got.Username != "PlexBot" || len(got.Embeds) != 1 || got.Embeds[0].Title != "Test" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewSender(srv.Client(), zerolog.Nop())
	if err := sender.Send(context.Background(), srv.URL, WebhookPayload{}); err == nil {
		t.Fatal("expected error for 429 response")
	}
}
