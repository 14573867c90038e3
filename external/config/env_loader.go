package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/rokuonkun/internal/config"
)

type envConfig struct {
	Env          string `env:"ENV" envDefault:"production"`
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	DatabaseURL  string `env:"DATABASE_URL,required"`

	LogsDir             string `env:"LOGS_DIR" envDefault:".logs"`
	AudioSessionsSubdir string `env:"AUDIO_SESSIONS_SUBDIR" envDefault:"audio"`
	AudioFormat         string `env:"AUDIO_FORMAT" envDefault:"wav"`
	ArchiveAudio        bool   `env:"ARCHIVE_AUDIO" envDefault:"true"`

	SessionMode             string  `env:"SESSION_MODE" envDefault:"transcribing"`
	MaxSessionDurationMin   int     `env:"MAX_SESSION_DURATION_MIN" envDefault:"240"`
	SessionWarningWindowMin int     `env:"SESSION_WARNING_WINDOW_MIN" envDefault:"5"`
	SilenceThresholdSec     float64 `env:"SILENCE_THRESHOLD_SEC" envDefault:"1.2"`
	MinUtteranceDurationSec float64 `env:"MIN_UTTERANCE_DURATION_SEC" envDefault:"0.1"`
	SpeakerQueueLimit       int     `env:"SPEAKER_QUEUE_LIMIT" envDefault:"200"`
	MaxSpeakers             int     `env:"MAX_SPEAKERS" envDefault:"-1"`
	EnableNoiseFilter       bool    `env:"ENABLE_NOISE_FILTER" envDefault:"true"`

	TranscribeBackend  string `env:"TRANSCRIBE_BACKEND" envDefault:"whisper_server"`
	TranscribeLanguage string `env:"TRANSCRIBE_LANGUAGE" envDefault:"en"`
	WhisperServerURL   string `env:"WHISPER_SERVER_URL"`
	WhisperModel       string `env:"WHISPER_MODEL" envDefault:"whisper-1"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`

	PlayerMapDir      string `env:"PLAYER_MAP_DIR"`
	SessionWebhookURL string `env:"SESSION_WEBHOOK_URL"`
	MetricsAddr       string `env:"METRICS_ADDR"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		DiscordToken:               raw.DiscordToken,
		DatabaseURL:                raw.DatabaseURL,
		LogsDir:                    raw.LogsDir,
		AudioSessionsSubdir:        raw.AudioSessionsSubdir,
		AudioFormat:                raw.AudioFormat,
		ArchiveAudio:               raw.ArchiveAudio,
		SessionMode:                raw.SessionMode,
		MaxSessionDurationMin:      raw.MaxSessionDurationMin,
		SessionWarningWindowMin:    raw.SessionWarningWindowMin,
		SilenceThresholdSec:        raw.SilenceThresholdSec,
		MinUtteranceDurationSec:    raw.MinUtteranceDurationSec,
		SpeakerQueueLimit:          raw.SpeakerQueueLimit,
		MaxSpeakers:                raw.MaxSpeakers,
		EnableNoiseFilter:          raw.EnableNoiseFilter,
		TranscribeBackend:          raw.TranscribeBackend,
		TranscribeLanguage:         raw.TranscribeLanguage,
		WhisperServerURL:           raw.WhisperServerURL,
		WhisperModel:               raw.WhisperModel,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		PlayerMapDir:               raw.PlayerMapDir,
		SessionWebhookURL:          raw.SessionWebhookURL,
		MetricsAddr:                raw.MetricsAddr,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
