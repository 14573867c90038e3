package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments. A single instance is
// shared across all guild sessions.
type Metrics struct {
	FramesReceived prometheus.Counter
	FramesDropped  prometheus.Counter

	ActiveSessions   prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsFinished prometheus.Counter

	UtterancesFlushed prometheus.Counter
	ArchivedBytes     prometheus.Counter

	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionSkipped  prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer lets tests use an isolated registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokuonkun_voice_frames_received_total",
			Help: "Total number of PCM frames accepted by sinks",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokuonkun_voice_frames_dropped_total",
			Help: "Total number of PCM frames dropped due to full sink queues",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rokuonkun_active_sessions",
			Help: "Current number of active recording sessions across guilds",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokuonkun_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		SessionsFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokuonkun_sessions_finished_total",
			Help: "Total number of sessions finalized",
		}),
		UtterancesFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokuonkun_utterances_flushed_total",
			Help: "Total number of speaker utterances flushed on silence",
		}),
		ArchivedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokuonkun_archived_pcm_bytes_total",
			Help: "Total raw PCM bytes written to per-speaker archives",
		}),
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokuonkun_transcription_requests_total",
			Help: "Total number of utterances sent to the transcription backend",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokuonkun_transcription_failures_total",
			Help: "Total number of transcription backend errors",
		}),
		TranscriptionSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokuonkun_transcription_skipped_total",
			Help: "Total number of utterances skipped below the minimum duration",
		}),
	}
}
