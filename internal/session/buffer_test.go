package session

import (
	"bytes"
	"testing"
	"time"
)

func testBufferConfig() BufferConfig {
	return BufferConfig{
		SilenceThreshold: 1200 * time.Millisecond,
		QueueLimit:       200,
		MaxSpeakers:      -1,
	}
}

func TestBuffer_GroupsChunksPerSpeaker(t *testing.T) {
	b := NewBuffer(testBufferConfig())
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.AddAudio("u1", []byte{1, 2}, at)
	b.AddAudio("u2", []byte{3, 4}, at)
	b.AddAudio("u1", []byte{5, 6}, at.Add(100*time.Millisecond))

	if got := len(b.TrackedSpeakers()); got != 2 {
		t.Fatalf("expected 2 tracked speakers, got %d", got)
	}

	u, err := b.FlushSpeaker("u1")
	if err != nil {
		t.Fatalf("failed to flush: %v", err)
	}
	if !u.StartedAt.Equal(at) || !u.EndedAt.Equal(at.Add(100*time.Millisecond)) {
		t.Fatalf("unexpected utterance bounds: %v .. %v", u.StartedAt, u.EndedAt)
	}
	if !bytes.Contains(u.WAV, []byte{1, 2, 5, 6}) {
		t.Fatal("expected flushed wav to contain both chunks in order")
	}
	if got := len(b.TrackedSpeakers()); got != 1 {
		t.Fatalf("expected u1 to leave tracking, got %d speakers", got)
	}
}

func TestBuffer_EvictsOldestAtQueueLimit(t *testing.T) {
	cfg := testBufferConfig()
	cfg.QueueLimit = 2
	b := NewBuffer(cfg)
	at := time.Now()

	b.AddAudio("u1", []byte{1}, at)
	b.AddAudio("u1", []byte{2}, at)
	evicted, ok := b.AddAudio("u1", []byte{3}, at)
	if !ok || evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d (ok=%v)", evicted, ok)
	}

	u, err := b.FlushSpeaker("u1")
	if err != nil {
		t.Fatalf("failed to flush: %v", err)
	}
	if bytes.Contains(u.WAV, []byte{1, 2, 3}) {
		t.Fatal("expected oldest chunk to be evicted")
	}
	if !bytes.Contains(u.WAV, []byte{2, 3}) {
		t.Fatal("expected newest chunks to survive")
	}
}

func TestBuffer_SpeakerCap(t *testing.T) {
	cfg := testBufferConfig()
	cfg.MaxSpeakers = 1
	b := NewBuffer(cfg)
	at := time.Now()

	if _, ok := b.AddAudio("u1", []byte{1}, at); !ok {
		t.Fatal("first speaker must be accepted")
	}
	if _, ok := b.AddAudio("u2", []byte{2}, at); ok {
		t.Fatal("second speaker must be rejected at cap 1")
	}
	if _, ok := b.AddAudio("u1", []byte{3}, at); !ok {
		t.Fatal("tracked speaker must keep being accepted")
	}
	if b.RejectedChunks() != 1 {
		t.Fatalf("expected 1 rejected chunk, got %d", b.RejectedChunks())
	}

	// Flushing frees the slot.
	if _, err := b.FlushSpeaker("u1"); err != nil {
		t.Fatalf("failed to flush: %v", err)
	}
	if _, ok := b.AddAudio("u2", []byte{4}, at); !ok {
		t.Fatal("expected free slot after flush")
	}
}

func TestBuffer_NegativeMaxSpeakersIsUnlimited(t *testing.T) {
	cfg := testBufferConfig()
	cfg.MaxSpeakers = -1
	b := NewBuffer(cfg)
	at := time.Now()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if _, ok := b.AddAudio(id, []byte{1}, at); !ok {
			t.Fatalf("speaker %s rejected despite unlimited cap", id)
		}
	}
}

func TestBuffer_IsSpeakerDoneInclusiveThreshold(t *testing.T) {
	b := NewBuffer(testBufferConfig())
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.AddAudio("u1", []byte{1}, at)

	if b.IsSpeakerDone("u1", at.Add(1199*time.Millisecond)) {
		t.Fatal("gap below threshold must keep the utterance open")
	}
	if !b.IsSpeakerDone("u1", at.Add(1200*time.Millisecond)) {
		t.Fatal("gap exactly at threshold must close the utterance")
	}
	if b.IsSpeakerDone("unknown", at.Add(time.Hour)) {
		t.Fatal("untracked speakers are never done")
	}
}

func TestBuffer_DrainAllFlushesEverything(t *testing.T) {
	b := NewBuffer(testBufferConfig())
	at := time.Now()
	b.AddAudio("u1", []byte{1}, at)
	b.AddAudio("u2", []byte{2}, at)

	utterances := b.DrainAll()
	if len(utterances) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utterances))
	}
	if got := len(b.TrackedSpeakers()); got != 0 {
		t.Fatalf("expected empty buffer after drain, got %d speakers", got)
	}
}

func TestBuffer_FirstSeenSurvivesFlush(t *testing.T) {
	b := NewBuffer(testBufferConfig())
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.AddAudio("u1", []byte{1}, at)
	if _, err := b.FlushSpeaker("u1"); err != nil {
		t.Fatalf("failed to flush: %v", err)
	}
	b.AddAudio("u1", []byte{2}, at.Add(time.Minute))

	seen := b.FirstSeen()
	if !seen["u1"].Equal(at) {
		t.Fatalf("expected first-seen %v to survive flush, got %v", at, seen["u1"])
	}
}
