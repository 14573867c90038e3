package session

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/rokuonkun/internal/transcriber"
)

type sinkStubBackend struct {
	text string
}

func (b *sinkStubBackend) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return b.text, nil
}

func (b *sinkStubBackend) Close() error { return nil }

func newTestSession(t *testing.T, mode Mode) *Session {
	t.Helper()
	sess := New("guild-1", mode, "", time.Now())
	if err := ApplyPaths(sess, t.TempDir(), "audio"); err != nil {
		t.Fatalf("failed to apply paths: %v", err)
	}
	sess.AddOrUpdatePlayer("u1", "Alice", "Margaret")
	return sess
}

func newTestSink(sess *Session, adapter *transcriber.Adapter, onEvent func(TranscriptionEvent)) *Sink {
	return NewSink(SinkConfig{
		Session: sess,
		Buffer: BufferConfig{
			SilenceThreshold: 20 * time.Millisecond,
			QueueLimit:       200,
			MaxSpeakers:      -1,
		},
		ArchiveAudio: true,
		AudioFormat:  "wav",
		EventSource:  "whisper_server",
		PollInterval: 5 * time.Millisecond,
	}, nil, adapter, nil, onEvent)
}

func pcmFrame() []byte {
	return make([]byte, 3840) // one 20ms frame at 48kHz/16-bit/stereo
}

func TestSink_LifecycleStates(t *testing.T) {
	sess := newTestSession(t, ModeRecordOnly)
	sink := newTestSink(sess, nil, nil)

	if sink.State() != SinkIdle {
		t.Fatalf("expected idle, got %s", sink.State())
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	if sink.State() != SinkRunning {
		t.Fatalf("expected running, got %s", sink.State())
	}
	if err := sink.Start(); err == nil {
		t.Fatal("expected second start to fail")
	}
	if _, err := sink.Cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if sink.State() != SinkClosed {
		t.Fatalf("expected closed, got %s", sink.State())
	}
}

func TestSink_TranscribesFlushedUtterances(t *testing.T) {
	sess := newTestSession(t, ModeTranscribing)
	adapter := transcriber.NewAdapter(&sinkStubBackend{text: "we open the door"}, transcriber.AdapterConfig{Language: "en"})
	events := make(chan TranscriptionEvent, 8)
	sink := newTestSink(sess, adapter, func(ev TranscriptionEvent) { events <- ev })

	if err := sink.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	sink.Write("u1", pcmFrame())

	var ev TranscriptionEvent
	select {
	case ev = <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for silence flush")
	}
	if ev.Text != "we open the door" {
		t.Fatalf("unexpected text: %q", ev.Text)
	}
	if ev.Player != "Alice" || ev.Character != "Margaret" {
		t.Fatalf("expected player identity on the event, got %+v", ev)
	}
	if ev.EventSource != "whisper_server" {
		t.Fatalf("unexpected event source: %q", ev.EventSource)
	}

	res, err := sink.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if res.EventCount != 1 {
		t.Fatalf("expected 1 event, got %d", res.EventCount)
	}
	if res.EventLogPath == "" {
		t.Fatal("expected an event log path")
	}

	f, err := os.Open(res.EventLogPath)
	if err != nil {
		t.Fatalf("failed to open event log: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("expected at least one event line")
	}
	var logged TranscriptionEvent
	if err := json.Unmarshal(scanner.Bytes(), &logged); err != nil {
		t.Fatalf("event line is not valid json: %v", err)
	}
	if logged.SessionID != sess.SessionID || logged.UserID != "u1" {
		t.Fatalf("unexpected logged event: %+v", logged)
	}
}

func TestSink_DrainsBufferedSpeechOnCleanup(t *testing.T) {
	sess := newTestSession(t, ModeTranscribing)
	adapter := transcriber.NewAdapter(&sinkStubBackend{text: "last words"}, transcriber.AdapterConfig{Language: "en"})
	events := make(chan TranscriptionEvent, 8)
	sink := NewSink(SinkConfig{
		Session: sess,
		Buffer: BufferConfig{
			// Far beyond the test runtime: only draining can flush this.
			SilenceThreshold: time.Hour,
			QueueLimit:       200,
			MaxSpeakers:      -1,
		},
		ArchiveAudio: true,
		AudioFormat:  "wav",
		EventSource:  "whisper_server",
	}, nil, adapter, nil, func(ev TranscriptionEvent) { events <- ev })

	if err := sink.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	sink.Write("u1", pcmFrame())

	res, err := sink.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Text != "last words" {
			t.Fatalf("unexpected text: %q", ev.Text)
		}
	default:
		t.Fatal("expected the buffered utterance to be flushed on drain")
	}
	if res.EventCount != 1 {
		t.Fatalf("expected 1 event, got %d", res.EventCount)
	}
}

func TestSink_RecordOnlyArchivesWithoutEventLog(t *testing.T) {
	sess := newTestSession(t, ModeRecordOnly)
	sink := newTestSink(sess, nil, nil)

	if err := sink.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	sink.Write("u1", pcmFrame())

	res, err := sink.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if res.EventLogPath != "" {
		t.Fatalf("expected no event log in record_only, got %q", res.EventLogPath)
	}
	if len(res.AudioFiles) != 1 {
		t.Fatalf("expected 1 audio file, got %d", len(res.AudioFiles))
	}
	if !strings.HasSuffix(res.AudioFiles["u1"], "user_u1.wav") {
		t.Fatalf("unexpected audio path: %q", res.AudioFiles["u1"])
	}
	if res.BytesArchived != int64(len(pcmFrame())) {
		t.Fatalf("expected %d archived bytes, got %d", len(pcmFrame()), res.BytesArchived)
	}
}

func TestSink_NoAudioLeavesNoArtifacts(t *testing.T) {
	sess := newTestSession(t, ModeRecordOnly)
	if err := sess.SaveMeta(); err != nil {
		t.Fatalf("failed to save meta: %v", err)
	}
	sink := newTestSink(sess, nil, nil)
	if err := sink.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	// Empty frames are dropped before they reach the queue.
	sink.Write("u1", nil)
	sink.Write("u1", []byte{})

	res, err := sink.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if len(res.AudioFiles) != 0 || res.BytesArchived != 0 || res.EventCount != 0 {
		t.Fatalf("expected an empty result, got %+v", res)
	}
	if sink.DroppedFrames() != 0 {
		t.Fatalf("empty frames must not count as dropped, got %d", sink.DroppedFrames())
	}

	raw, err := os.ReadFile(sess.MetaPath)
	if err != nil {
		t.Fatalf("failed to read meta: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("meta is not valid json: %v", err)
	}
	if extra, ok := doc["extra"].(map[string]any); ok {
		if _, found := extra["audio_start_ts"]; found {
			t.Fatal("a session without audio must not record audio_start_ts")
		}
	}
}

func TestSink_CleanupMergesExtrasIntoMeta(t *testing.T) {
	sess := newTestSession(t, ModeRecordOnly)
	if err := sess.SaveMeta(); err != nil {
		t.Fatalf("failed to save meta: %v", err)
	}
	sink := newTestSink(sess, nil, nil)
	if err := sink.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	sink.Write("u1", pcmFrame())

	if _, err := sink.Cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	raw, err := os.ReadFile(sess.MetaPath)
	if err != nil {
		t.Fatalf("failed to read meta: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("meta is not valid json: %v", err)
	}
	extra, ok := doc["extra"].(map[string]any)
	if !ok {
		t.Fatalf("expected extra object, got %T", doc["extra"])
	}
	if _, ok := extra["audio_start_ts"]; !ok {
		t.Fatal("expected audio_start_ts in extras")
	}
	offsets, ok := extra["user_first_offset_seconds"].(map[string]any)
	if !ok {
		t.Fatal("expected user_first_offset_seconds in extras")
	}
	if _, ok := offsets["u1"]; !ok {
		t.Fatalf("expected offset for u1, got %v", offsets)
	}
	if _, ok := extra["player_map"]; !ok {
		t.Fatal("expected player_map in extras")
	}
}

func TestSink_CleanupIsIdempotent(t *testing.T) {
	sess := newTestSession(t, ModeRecordOnly)
	sink := newTestSink(sess, nil, nil)
	if err := sink.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	sink.Write("u1", pcmFrame())

	first, err := sink.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	second, err := sink.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("second cleanup failed: %v", err)
	}
	if first.BytesArchived != second.BytesArchived || len(first.AudioFiles) != len(second.AudioFiles) {
		t.Fatal("expected repeated cleanup to return the first result")
	}

	// Writes after close are dropped silently.
	sink.Write("u1", pcmFrame())
	if sink.State() != SinkClosed {
		t.Fatalf("expected closed state, got %s", sink.State())
	}
}
