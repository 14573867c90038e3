package repository

import (
	"context"
	"time"
)

type CreateSessionInput struct {
	SessionID string
	GuildID   string
	Mode      string
	Label     string
	BaseDir   string
	StartedAt time.Time
}

type CompleteSessionInput struct {
	SessionID string
	EndedAt   time.Time
}

type InsertTranscriptEventInput struct {
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
}

type SessionRepository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*SessionRow, error)
	UpdateSessionCompleted(ctx context.Context, input CompleteSessionInput) error
	ListRunningSessions(ctx context.Context) ([]SessionRow, error)
}

type TranscriptRepository interface {
	InsertTranscriptEvent(ctx context.Context, input InsertTranscriptEventInput) error
	ListTranscriptEventsBySessionID(ctx context.Context, sessionID string) ([]TranscriptEventRow, error)
}

type Repository interface {
	SessionRepository
	TranscriptRepository
}
