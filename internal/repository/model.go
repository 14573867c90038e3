package repository

import "time"

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
)

// SessionRow is the Postgres index entry for one recording session. The
// authoritative session record stays on disk (session_meta.json); the index
// exists so operators can query past sessions without crawling directories.
type SessionRow struct {
	SessionID string
	GuildID   string
	Mode      string
	Label     string
	BaseDir   string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    SessionStatus
	CreatedAt time.Time
}

// TranscriptEventRow mirrors one line of the session's transcript.jsonl.
type TranscriptEventRow struct {
	ID          string
	SessionID   string
	GuildID     string
	UserID      string
	Player      string
	Character   string
	EventSource string
	StartedAt   time.Time
	EndedAt     time.Time
	Text        string
	IsNoise     bool
	ErrorText   string
	CreatedAt   time.Time
}
