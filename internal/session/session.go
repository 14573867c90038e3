package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Mode is the behavior variant of a session. record_only archives audio and
// metadata; transcribing additionally runs every utterance through the
// transcription adapter. record_only is a strict subset of transcribing.
type Mode string

const (
	ModeRecordOnly   Mode = "record_only"
	ModeTranscribing Mode = "transcribing"
)

// CoerceMode maps a requested mode string onto the supported set. Unknown
// values degrade to record_only with a warning instead of failing, so a bad
// configuration never aborts an otherwise valid voice connection.
func CoerceMode(raw string) Mode {
	switch Mode(raw) {
	case ModeRecordOnly, ModeTranscribing:
		return Mode(raw)
	default:
		slog.Warn("unsupported session mode requested; falling back to record_only", "requested_mode", raw)
		return ModeRecordOnly
	}
}

// PlayerInfo is the identity snapshot of one participant within a session.
type PlayerInfo struct {
	UserID             string
	Player             string
	Character          string
	FirstOffsetSeconds *float64
	FirstSpokeAt       *time.Time
}

// Session is one bounded recording interval for a guild. It is exclusively
// owned by the Manager for its active lifetime; the sink only derives paths
// and player metadata from it and merges extras back through the meta file.
type Session struct {
	SessionID string
	GuildID   string
	Mode      Mode
	StartedAt time.Time
	EndedAt   *time.Time
	Label     string

	BaseDir  string
	AudioDir string
	MetaPath string

	Players map[string]*PlayerInfo
	Extra   map[string]any
}

// MakeSessionID derives a stable session id from the creation instant and the
// guild, e.g. "2025-12-09_20-30-00_g941688253159968788".
func MakeSessionID(guildID string, now time.Time) string {
	return fmt.Sprintf("%s_g%s", now.UTC().Format("2006-01-02_15-04-05"), guildID)
}

func New(guildID string, mode Mode, label string, now time.Time) *Session {
	return &Session{
		SessionID: MakeSessionID(guildID, now),
		GuildID:   guildID,
		Mode:      mode,
		StartedAt: now.UTC(),
		Label:     label,
		Players:   make(map[string]*PlayerInfo),
		Extra:     make(map[string]any),
	}
}

func (s *Session) AddOrUpdatePlayer(userID, player, character string) *PlayerInfo {
	info, ok := s.Players[userID]
	if !ok {
		info = &PlayerInfo{UserID: userID}
		s.Players[userID] = info
	}
	if player != "" {
		info.Player = player
	}
	if character != "" {
		info.Character = character
	}
	return info
}

// Finalize sets EndedAt exactly once. Repeated calls are no-ops.
func (s *Session) Finalize(now time.Time) {
	if s.EndedAt != nil {
		return
	}
	ended := now.UTC()
	s.EndedAt = &ended
}

type playerRecord struct {
	UserID             string     `json:"user_id"`
	Player             string     `json:"player,omitempty"`
	Character          string     `json:"character,omitempty"`
	FirstOffsetSeconds *float64   `json:"first_offset_seconds,omitempty"`
	FirstSpokeAt       *time.Time `json:"first_spoke_at,omitempty"`
}

type sessionRecord struct {
	SessionID string          `json:"session_id"`
	GuildID   string          `json:"guild_id"`
	Mode      string          `json:"mode"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at"`
	Label     string          `json:"label,omitempty"`
	BaseDir   string          `json:"base_dir"`
	AudioDir  string          `json:"audio_dir"`
	MetaPath  string          `json:"meta_path"`
	Players   json.RawMessage `json:"players"`
	Extra     map[string]any  `json:"extra,omitempty"`
}

// ToRecord serializes the session for session_meta.json. Player keys are
// stringified user ids (JSON object-key constraint).
func (s *Session) ToRecord() ([]byte, error) {
	players := make(map[string]playerRecord, len(s.Players))
	for userID, p := range s.Players {
		players[userID] = playerRecord{
			UserID:             p.UserID,
			Player:             p.Player,
			Character:          p.Character,
			FirstOffsetSeconds: p.FirstOffsetSeconds,
			FirstSpokeAt:       p.FirstSpokeAt,
		}
	}
	rawPlayers, err := json.Marshal(players)
	if err != nil {
		return nil, err
	}
	rec := sessionRecord{
		SessionID: s.SessionID,
		GuildID:   s.GuildID,
		Mode:      string(s.Mode),
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Label:     s.Label,
		BaseDir:   s.BaseDir,
		AudioDir:  s.AudioDir,
		MetaPath:  s.MetaPath,
		Players:   rawPlayers,
		Extra:     s.Extra,
	}
	return json.MarshalIndent(rec, "", "  ")
}

// FromRecord parses a session_meta.json document. Players are accepted either
// as a user-id-keyed object or as a list of entries; older archives used both
// shapes.
func FromRecord(data []byte) (*Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse session record: %w", err)
	}
	players, err := parsePlayers(rec.Players)
	if err != nil {
		return nil, err
	}
	s := &Session{
		SessionID: rec.SessionID,
		GuildID:   rec.GuildID,
		Mode:      CoerceMode(rec.Mode),
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Label:     rec.Label,
		BaseDir:   rec.BaseDir,
		AudioDir:  rec.AudioDir,
		MetaPath:  rec.MetaPath,
		Players:   players,
		Extra:     rec.Extra,
	}
	if s.Extra == nil {
		s.Extra = make(map[string]any)
	}
	return s, nil
}

func parsePlayers(raw json.RawMessage) (map[string]*PlayerInfo, error) {
	players := make(map[string]*PlayerInfo)
	if len(raw) == 0 {
		return players, nil
	}

	var keyed map[string]playerRecord
	if err := json.Unmarshal(raw, &keyed); err == nil {
		for userID, p := range keyed {
			if p.UserID == "" {
				p.UserID = userID
			}
			players[p.UserID] = &PlayerInfo{
				UserID:             p.UserID,
				Player:             p.Player,
				Character:          p.Character,
				FirstOffsetSeconds: p.FirstOffsetSeconds,
				FirstSpokeAt:       p.FirstSpokeAt,
			}
		}
		return players, nil
	}

	var listed []playerRecord
	if err := json.Unmarshal(raw, &listed); err != nil {
		return nil, fmt.Errorf("players is neither an object nor a list: %w", err)
	}
	for _, p := range listed {
		if p.UserID == "" {
			continue
		}
		players[p.UserID] = &PlayerInfo{
			UserID:             p.UserID,
			Player:             p.Player,
			Character:          p.Character,
			FirstOffsetSeconds: p.FirstOffsetSeconds,
			FirstSpokeAt:       p.FirstSpokeAt,
		}
	}
	return players, nil
}

// SaveMeta persists the session to its meta path.
func (s *Session) SaveMeta() error {
	if s.MetaPath == "" {
		return fmt.Errorf("session %s has no meta path", s.SessionID)
	}
	data, err := s.ToRecord()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.MetaPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.MetaPath, data, 0o644)
}

func LoadMeta(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromRecord(data)
}

// MergeMetaExtras folds extra fields into an already-written meta file. The
// sink calls this after finalize; the design tolerates this one extra write
// as a best-effort merge.
func MergeMetaExtras(metaPath string, extras map[string]any) error {
	if metaPath == "" || len(extras) == 0 {
		return nil
	}
	doc := make(map[string]any)
	data, err := os.ReadFile(metaPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &doc); err != nil {
			slog.Error("session meta is unreadable; rebuilding extras document", "error", err, "meta_path", metaPath)
			doc = make(map[string]any)
		}
	case os.IsNotExist(err):
		// First write; meta finalize may have failed earlier.
	default:
		return err
	}

	cur, _ := doc["extra"].(map[string]any)
	if cur == nil {
		cur = make(map[string]any)
	}
	for k, v := range extras {
		if v != nil {
			cur[k] = v
		}
	}
	doc["extra"] = cur

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(metaPath, out, 0o644)
}
