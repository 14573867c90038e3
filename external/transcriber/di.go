package transcriber

import (
	"fmt"

	"github.com/foxseedlab/rokuonkun/internal/config"
	internaltranscriber "github.com/foxseedlab/rokuonkun/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (internaltranscriber.Backend, error) {
		c := do.MustInvoke[*config.Config](i)
		switch c.TranscribeBackend {
		case config.TranscribeBackendWhisperServer:
			return NewWhisperServerBackend(c.WhisperServerURL, c.WhisperModel), nil
		case config.TranscribeBackendCloudSpeech:
			return NewCloudSpeechBackend(CloudSpeechConfig{
				ProjectID:       c.GoogleCloudProjectID,
				CredentialsJSON: c.GoogleCloudCredentialsJSON,
				Location:        c.GoogleCloudSpeechLocation,
				Model:           c.GoogleCloudSpeechModel,
			}), nil
		default:
			return nil, fmt.Errorf("unsupported transcribe backend %q", c.TranscribeBackend)
		}
	})
}
