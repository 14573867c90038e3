package session

import (
	"time"

	"github.com/foxseedlab/rokuonkun/internal/audio"
	"github.com/foxseedlab/rokuonkun/internal/config"
	"github.com/foxseedlab/rokuonkun/internal/discord"
	"github.com/foxseedlab/rokuonkun/internal/identity"
	"github.com/foxseedlab/rokuonkun/internal/metrics"
	"github.com/foxseedlab/rokuonkun/internal/repository"
	"github.com/foxseedlab/rokuonkun/internal/transcriber"
	"github.com/foxseedlab/rokuonkun/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		dc := do.MustInvoke[discord.Client](i)
		ids := do.MustInvoke[identity.Provider](i)
		converter := do.MustInvoke[audio.Converter](i)
		repo := do.MustInvoke[repository.Repository](i)
		hook := do.MustInvoke[webhook.Sender](i)
		m := do.MustInvoke[*metrics.Metrics](i)

		// The transcription backend is only resolved when transcription is
		// actually enabled; record_only deployments need no backend at all.
		var adapter *transcriber.Adapter
		if cfg.SessionMode == config.SessionModeTranscribing {
			backend, err := do.Invoke[transcriber.Backend](i)
			if err != nil {
				return nil, err
			}
			adapter = transcriber.NewAdapter(backend, transcriber.AdapterConfig{
				Language:          cfg.TranscribeLanguage,
				MinDuration:       time.Duration(cfg.MinUtteranceDurationSec * float64(time.Second)),
				EnableNoiseFilter: cfg.EnableNoiseFilter,
			})
		}

		return NewManager(cfg, dc, ids, converter, adapter, repo, hook, m), nil
	})
}
