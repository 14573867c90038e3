package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMakeSessionID(t *testing.T) {
	at := time.Date(2025, 12, 9, 20, 30, 0, 0, time.UTC)
	got := MakeSessionID("941688253159968788", at)
	want := "2025-12-09_20-30-00_g941688253159968788"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMakeSessionID_NormalizesToUTC(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	at := time.Date(2025, 12, 10, 5, 30, 0, 0, jst)
	got := MakeSessionID("g1", at)
	if got != "2025-12-09_20-30-00_gg1" {
		t.Fatalf("expected UTC-normalized id, got %q", got)
	}
}

func TestSessionRecord_RoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sess := New("guild-1", ModeTranscribing, "one-shot", at)
	sess.BaseDir = "/tmp/base"
	sess.AudioDir = "/tmp/base"
	sess.MetaPath = "/tmp/base/session_meta.json"
	offset := 12.5
	p := sess.AddOrUpdatePlayer("user-1", "Alice", "Margaret the Cleric")
	p.FirstOffsetSeconds = &offset
	sess.Finalize(at.Add(time.Hour))

	data, err := sess.ToRecord()
	if err != nil {
		t.Fatalf("failed to serialize: %v", err)
	}
	got, err := FromRecord(data)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	if got.SessionID != sess.SessionID || got.GuildID != "guild-1" || got.Mode != ModeTranscribing {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(at.Add(time.Hour)) {
		t.Fatalf("expected ended_at to survive, got %v", got.EndedAt)
	}
	player, ok := got.Players["user-1"]
	if !ok {
		t.Fatal("expected player user-1 to survive")
	}
	if player.Player != "Alice" || player.Character != "Margaret the Cleric" {
		t.Fatalf("unexpected player: %+v", player)
	}
	if player.FirstOffsetSeconds == nil || *player.FirstOffsetSeconds != 12.5 {
		t.Fatalf("unexpected first offset: %v", player.FirstOffsetSeconds)
	}
}

func TestFromRecord_AcceptsPlayersAsList(t *testing.T) {
	doc := `{
		"session_id": "2025-01-01_00-00-00_g1",
		"guild_id": "1",
		"mode": "record_only",
		"started_at": "2025-01-01T00:00:00Z",
		"ended_at": null,
		"players": [
			{"user_id": "u1", "player": "Bob"},
			{"user_id": "u2", "player": "Carol", "character": "Finn"}
		]
	}`
	sess, err := FromRecord([]byte(doc))
	if err != nil {
		t.Fatalf("failed to parse list-shaped players: %v", err)
	}
	if len(sess.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(sess.Players))
	}
	if sess.Players["u2"].Character != "Finn" {
		t.Fatalf("unexpected player u2: %+v", sess.Players["u2"])
	}
}

func TestFromRecord_UnknownModeFallsBackToRecordOnly(t *testing.T) {
	doc := `{"session_id": "x", "guild_id": "1", "mode": "shouting", "started_at": "2025-01-01T00:00:00Z", "players": {}}`
	sess, err := FromRecord([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Mode != ModeRecordOnly {
		t.Fatalf("expected record_only fallback, got %q", sess.Mode)
	}
}

func TestFinalize_SetsEndedAtOnce(t *testing.T) {
	sess := New("g", ModeRecordOnly, "", time.Now())
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sess.Finalize(first)
	sess.Finalize(first.Add(time.Hour))
	if sess.EndedAt == nil || !sess.EndedAt.Equal(first) {
		t.Fatalf("expected ended_at to stay %v, got %v", first, sess.EndedAt)
	}
}

func TestSaveAndLoadMeta(t *testing.T) {
	dir := t.TempDir()
	sess := New("g1", ModeRecordOnly, "", time.Now())
	sess.MetaPath = filepath.Join(dir, "session_meta.json")

	if err := sess.SaveMeta(); err != nil {
		t.Fatalf("failed to save meta: %v", err)
	}
	got, err := LoadMeta(sess.MetaPath)
	if err != nil {
		t.Fatalf("failed to load meta: %v", err)
	}
	if got.SessionID != sess.SessionID {
		t.Fatalf("expected %q, got %q", sess.SessionID, got.SessionID)
	}
	if got.EndedAt != nil {
		t.Fatalf("expected running session, got ended_at %v", got.EndedAt)
	}
}

func TestMergeMetaExtras(t *testing.T) {
	dir := t.TempDir()
	sess := New("g1", ModeRecordOnly, "", time.Now())
	sess.MetaPath = filepath.Join(dir, "session_meta.json")
	if err := sess.SaveMeta(); err != nil {
		t.Fatalf("failed to save meta: %v", err)
	}

	extras := map[string]any{
		"audio_start_ts":            "2026-01-01T00:00:00Z",
		"user_first_offset_seconds": map[string]float64{"u1": 3.5},
	}
	if err := MergeMetaExtras(sess.MetaPath, extras); err != nil {
		t.Fatalf("failed to merge extras: %v", err)
	}
	if err := MergeMetaExtras(sess.MetaPath, map[string]any{"player_map": map[string]string{"u1": "Alice"}}); err != nil {
		t.Fatalf("failed to merge second extras: %v", err)
	}

	raw, err := os.ReadFile(sess.MetaPath)
	if err != nil {
		t.Fatalf("failed to read meta: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("meta is not valid json: %v", err)
	}
	if doc["session_id"] != sess.SessionID {
		t.Fatal("merge must preserve the original document")
	}
	extra, ok := doc["extra"].(map[string]any)
	if !ok {
		t.Fatalf("expected extra object, got %T", doc["extra"])
	}
	if extra["audio_start_ts"] != "2026-01-01T00:00:00Z" {
		t.Fatalf("expected first merge to survive, got %v", extra["audio_start_ts"])
	}
	if _, ok := extra["player_map"]; !ok {
		t.Fatal("expected second merge to land")
	}
}
