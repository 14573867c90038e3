package config

import (
	"fmt"
	"strings"
)

// SupportedAudioFormats are the archive output containers the converter can
// produce. Everything except wav requires ffmpeg on PATH.
var SupportedAudioFormats = map[string]struct{}{
	"wav":  {},
	"mp3":  {},
	"flac": {},
	"ogg":  {},
}

const (
	SessionModeRecordOnly   = "record_only"
	SessionModeTranscribing = "transcribing"

	TranscribeBackendWhisperServer = "whisper_server"
	TranscribeBackendCloudSpeech   = "cloud_speech"
)

type Config struct {
	Env          string
	DiscordToken string
	DatabaseURL  string

	LogsDir             string
	AudioSessionsSubdir string
	AudioFormat         string
	ArchiveAudio        bool

	SessionMode             string
	MaxSessionDurationMin   int
	SessionWarningWindowMin int
	SilenceThresholdSec     float64
	MinUtteranceDurationSec float64
	SpeakerQueueLimit       int
	MaxSpeakers             int
	EnableNoiseFilter       bool

	TranscribeBackend  string
	TranscribeLanguage string
	WhisperServerURL   string
	WhisperModel       string

	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string

	PlayerMapDir      string
	SessionWebhookURL string
	MetricsAddr       string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	fmtName := strings.ToLower(strings.TrimSpace(c.AudioFormat))
	if _, ok := SupportedAudioFormats[fmtName]; !ok {
		return fmt.Errorf("AUDIO_FORMAT %q is not supported (wav, mp3, flac, ogg)", c.AudioFormat)
	}
	if c.MaxSessionDurationMin < 0 {
		return fmt.Errorf("MAX_SESSION_DURATION_MIN must be >= 0, got %d", c.MaxSessionDurationMin)
	}
	if c.MaxSessionDurationMin > 0 && c.SessionWarningWindowMin >= c.MaxSessionDurationMin {
		return fmt.Errorf("SESSION_WARNING_WINDOW_MIN (%d) must be smaller than MAX_SESSION_DURATION_MIN (%d)",
			c.SessionWarningWindowMin, c.MaxSessionDurationMin)
	}
	if c.SilenceThresholdSec <= 0 {
		return fmt.Errorf("SILENCE_THRESHOLD_SEC must be positive, got %g", c.SilenceThresholdSec)
	}
	if c.MinUtteranceDurationSec < 0 {
		return fmt.Errorf("MIN_UTTERANCE_DURATION_SEC must be >= 0, got %g", c.MinUtteranceDurationSec)
	}
	if c.SpeakerQueueLimit <= 0 {
		return fmt.Errorf("SPEAKER_QUEUE_LIMIT must be positive, got %d", c.SpeakerQueueLimit)
	}
	if c.SessionMode == SessionModeTranscribing {
		if err := c.validateTranscribeBackend(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateTranscribeBackend() error {
	switch c.TranscribeBackend {
	case TranscribeBackendWhisperServer:
		if c.WhisperServerURL == "" {
			return fmt.Errorf("WHISPER_SERVER_URL is required when TRANSCRIBE_BACKEND=%s", TranscribeBackendWhisperServer)
		}
	case TranscribeBackendCloudSpeech:
		if c.GoogleCloudProjectID == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID is required when TRANSCRIBE_BACKEND=%s", TranscribeBackendCloudSpeech)
		}
		if c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_CREDENTIALS_JSON is required when TRANSCRIBE_BACKEND=%s", TranscribeBackendCloudSpeech)
		}
	default:
		return fmt.Errorf("TRANSCRIBE_BACKEND %q is not supported (%s, %s)",
			c.TranscribeBackend, TranscribeBackendWhisperServer, TranscribeBackendCloudSpeech)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "LOGS_DIR", value: c.LogsDir},
		{name: "AUDIO_SESSIONS_SUBDIR", value: c.AudioSessionsSubdir},
		{name: "TRANSCRIBE_LANGUAGE", value: c.TranscribeLanguage},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
