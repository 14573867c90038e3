package session

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	metaFileName     = "session_meta.json"
	eventLogFileName = "transcript.jsonl"
)

// ApplyPaths computes the on-disk layout for a session and creates its
// directory. Every artifact of one session lives under a single base
// directory named after the session id:
//
//	{logsDir}/{audioSubdir}/{sessionID}/user_<id>.wav
//	{logsDir}/{audioSubdir}/{sessionID}/session_meta.json
//	{logsDir}/{audioSubdir}/{sessionID}/transcript.jsonl
func ApplyPaths(s *Session, logsDir, audioSubdir string) error {
	base := filepath.Join(logsDir, audioSubdir, s.SessionID)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	s.BaseDir = base
	s.AudioDir = base
	s.MetaPath = filepath.Join(base, metaFileName)
	return nil
}

// SpeakerAudioPath is the per-speaker archive file, before conversion.
func SpeakerAudioPath(audioDir, userID string) string {
	return filepath.Join(audioDir, fmt.Sprintf("user_%s.wav", userID))
}

// EventLogPath is the per-session transcription event log.
func EventLogPath(baseDir string) string {
	return filepath.Join(baseDir, eventLogFileName)
}
