package transcriber

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/rokuonkun/internal/audio"
)

// Backend turns a WAV utterance into text. Implementations may call a local
// inference server or a remote API; they are selected once at construction.
type Backend interface {
	Transcribe(ctx context.Context, wav []byte, language string) (string, error)
	Close() error
}

// Result is what the session engine records for one utterance. A backend
// failure is not an error to the caller: Text degrades to empty and the
// failure is kept in ErrorText so the event log stays complete.
type Result struct {
	Text      string
	IsNoise   bool
	ErrorText string
}

type AdapterConfig struct {
	Language          string
	MinDuration       time.Duration
	EnableNoiseFilter bool
}

// Adapter wraps a Backend with minimum-duration gating and hallucination
// flagging. It never returns an error; a multi-hour session must not be torn
// down by one failed transcription.
type Adapter struct {
	backend Backend
	cfg     AdapterConfig
}

func NewAdapter(backend Backend, cfg AdapterConfig) *Adapter {
	return &Adapter{backend: backend, cfg: cfg}
}

func (a *Adapter) Transcribe(ctx context.Context, wav []byte) Result {
	duration, err := audio.Duration(wav)
	if err != nil {
		slog.Warn("could not read utterance duration; skipping transcription", "error", err)
		return Result{ErrorText: err.Error()}
	}
	if duration < a.cfg.MinDuration {
		slog.Debug("skipping transcription: utterance too short", "duration", duration, "min_duration", a.cfg.MinDuration)
		return Result{}
	}

	text, err := a.backend.Transcribe(ctx, wav, a.cfg.Language)
	if err != nil {
		slog.Error("transcription backend failed", "error", err, "duration", duration)
		return Result{ErrorText: err.Error()}
	}

	text = strings.TrimSpace(text)
	res := Result{Text: text}
	if a.cfg.EnableNoiseFilter && IsSubtitleNoise(text) {
		res.IsNoise = true
	}
	return res
}

func (a *Adapter) Close() error {
	return a.backend.Close()
}
