package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// TranscriptionEvent is one line of a session's transcript.jsonl. Every
// flushed utterance produces exactly one event, including utterances whose
// transcription failed or was skipped.
type TranscriptionEvent struct {
	SessionID   string    `json:"session_id"`
	GuildID     string    `json:"guild_id"`
	UserID      string    `json:"user_id"`
	Player      string    `json:"player,omitempty"`
	Character   string    `json:"character,omitempty"`
	EventSource string    `json:"event_source"`
	StartedAt   time.Time `json:"start"`
	EndedAt     time.Time `json:"end"`
	Text        string    `json:"text"`
	IsNoise     bool      `json:"is_noise,omitempty"`
	ErrorText   string    `json:"error,omitempty"`
}

// EventLog is an append-only JSONL file, flushed per line so a crash mid-
// session loses at most the event being written.
type EventLog struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

func OpenEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &EventLog{file: f}, nil
}

func (l *EventLog) Append(ev TranscriptionEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("event log is closed")
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return err
	}
	return l.file.Sync()
}

func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
