package webhook

import "context"

// SessionArchivePayload is posted to the configured webhook when a session
// finishes. PlayerCounts and paths let downstream tooling (report renderers,
// archive indexers) pick up the artifacts without filesystem access here.
type SessionArchivePayload struct {
	SessionID    string   `json:"session_id"`
	GuildID      string   `json:"guild_id"`
	Mode         string   `json:"mode"`
	Label        string   `json:"label,omitempty"`
	StartedAt    string   `json:"started_at"`
	EndedAt      string   `json:"ended_at"`
	BaseDir      string   `json:"base_dir"`
	MetaPath     string   `json:"meta_path"`
	PlayerCount  int      `json:"player_count"`
	AudioFormat  string   `json:"audio_format"`
	EventLogPath string   `json:"event_log_path,omitempty"`
	Players      []string `json:"players,omitempty"`
}

type Sender interface {
	SendSessionArchive(ctx context.Context, payload SessionArchivePayload) error
}
