package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	internalwebhook "github.com/foxseedlab/rokuonkun/internal/webhook"
)

func testPayload() internalwebhook.SessionArchivePayload {
	return internalwebhook.SessionArchivePayload{
		SessionID:   "2025-12-09_20-30-00_g1",
		GuildID:     "1",
		Mode:        "transcribing",
		StartedAt:   "2025-12-09T20:30:00Z",
		EndedAt:     "2025-12-09T23:30:00Z",
		BaseDir:     "/data/audio/2025-12-09_20-30-00_g1",
		MetaPath:    "/data/audio/2025-12-09_20-30-00_g1/session_meta.json",
		PlayerCount: 4,
		AudioFormat: "mp3",
		Players:     []string{"Alice", "Bob"},
	}
}

func TestSendSessionArchive_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	if err := sender.SendSessionArchive(context.Background(), testPayload()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSendSessionArchive_Success(t *testing.T) {
	var got internalwebhook.SessionArchivePayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendSessionArchive(context.Background(), testPayload()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.SessionID != "2025-12-09_20-30-00_g1" || got.PlayerCount != 4 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if len(got.Players) != 2 {
		t.Fatalf("expected players list, got %v", got.Players)
	}
}

func TestSendSessionArchive_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendSessionArchive(context.Background(), testPayload()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
