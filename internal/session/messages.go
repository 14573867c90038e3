package session

import "fmt"

const (
	msgAlreadyRecording = "A recording session is already running in this server. Stop it with /stop before starting a new one."
	msgNotRecording     = "No recording session is running in this server."
	msgJoinVoiceFirst   = "Join a voice channel first, then run /record again."
	msgPlayersRefreshed = "Player map reloaded."
)

func msgSessionStarted(sessionID string, mode Mode) string {
	if mode == ModeRecordOnly {
		return fmt.Sprintf("Recording started (audio only). Session: `%s`", sessionID)
	}
	return fmt.Sprintf("Recording and transcription started. Session: `%s`", sessionID)
}

func msgSessionStopped(sessionID string, reason string) string {
	if reason != "" {
		return fmt.Sprintf("Recording stopped (%s). Session `%s` has been archived.", reason, sessionID)
	}
	return fmt.Sprintf("Recording stopped. Session `%s` has been archived.", sessionID)
}

func msgSessionWarning(minutesLeft int) string {
	return fmt.Sprintf("Heads up: this recording session will stop automatically in %d minutes.", minutesLeft)
}

func msgStartFailed(err error) string {
	return fmt.Sprintf("Could not start recording: %v", err)
}

func msgTranscriptFile(sessionID string) string {
	return fmt.Sprintf("Transcript for session `%s`", sessionID)
}
