package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/rokuonkun/internal/audio"
	"github.com/foxseedlab/rokuonkun/internal/metrics"
	"github.com/foxseedlab/rokuonkun/internal/transcriber"
)

// SinkState is the sink lifecycle. Writes are only accepted in Running;
// Draining flushes buffered speech, and Closed is terminal.
type SinkState int32

const (
	SinkIdle SinkState = iota
	SinkRunning
	SinkDraining
	SinkClosed
)

func (s SinkState) String() string {
	switch s {
	case SinkIdle:
		return "idle"
	case SinkRunning:
		return "running"
	case SinkDraining:
		return "draining"
	case SinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type SinkConfig struct {
	Session      *Session
	Buffer       BufferConfig
	ArchiveAudio bool
	AudioFormat  string
	// EventSource tags every transcript event with the backend that
	// produced it ("whisper_server", "cloud_speech").
	EventSource string
	// PollInterval is the silence-boundary check cadence. Defaults to
	// 250ms.
	PollInterval time.Duration
	// QueueSize is the ingest channel capacity. Defaults to 512 frames.
	QueueSize int
}

type frame struct {
	userID string
	pcm    []byte
	at     time.Time
}

// CleanupResult summarizes what a finished sink left on disk.
type CleanupResult struct {
	AudioFiles    map[string]string
	EventLogPath  string
	BytesArchived int64
	EventCount    int
}

// Sink receives per-speaker PCM from the voice connection and fans it out to
// the archiver and the segmentation buffer. Ingest is a non-blocking channel
// send so the Discord receive path can never stall on disk or network; under
// overload frames are dropped and counted instead.
type Sink struct {
	cfg     SinkConfig
	adapter *transcriber.Adapter
	metrics *metrics.Metrics
	onEvent func(TranscriptionEvent)
	now     func() time.Time

	state  atomic.Int32
	frames chan frame
	done   chan struct{}
	wg     sync.WaitGroup

	archiver *Archiver
	buffer   *Buffer
	eventLog *EventLog

	dropped      atomic.Int64
	eventCount   atomic.Int64
	audioStartAt time.Time

	cleanupOnce sync.Once
	cleanupRes  CleanupResult
	cleanupErr  error
}

// NewSink builds an idle sink. adapter is nil in record_only mode; onEvent
// may be nil and is called best-effort for every transcript event.
func NewSink(cfg SinkConfig, converter audio.Converter, adapter *transcriber.Adapter, m *metrics.Metrics, onEvent func(TranscriptionEvent)) *Sink {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	s := &Sink{
		cfg:      cfg,
		adapter:  adapter,
		metrics:  m,
		onEvent:  onEvent,
		now:      time.Now,
		frames:   make(chan frame, cfg.QueueSize),
		done:     make(chan struct{}),
		archiver: NewArchiver(cfg.Session.AudioDir, cfg.AudioFormat, converter),
		buffer:   NewBuffer(cfg.Buffer),
	}
	s.state.Store(int32(SinkIdle))
	return s
}

func (s *Sink) State() SinkState {
	return SinkState(s.state.Load())
}

// Start opens the on-disk artifacts and begins the run loop.
func (s *Sink) Start() error {
	if !s.state.CompareAndSwap(int32(SinkIdle), int32(SinkRunning)) {
		return fmt.Errorf("sink cannot start from state %s", s.State())
	}

	if s.cfg.Session.Mode == ModeTranscribing {
		log, err := OpenEventLog(EventLogPath(s.cfg.Session.BaseDir))
		if err != nil {
			s.state.Store(int32(SinkClosed))
			return err
		}
		s.eventLog = log
	}

	s.wg.Add(1)
	go s.run()
	return nil
}

// Write hands one decoded PCM chunk to the sink. It never blocks: when the
// sink is not running or the queue is full the chunk is dropped and counted.
func (s *Sink) Write(userID string, pcm []byte) {
	if s.State() != SinkRunning || len(pcm) == 0 {
		return
	}
	f := frame{userID: userID, pcm: pcm, at: s.now()}
	select {
	case s.frames <- f:
		if s.metrics != nil {
			s.metrics.FramesReceived.Inc()
		}
	default:
		s.dropped.Add(1)
		if s.metrics != nil {
			s.metrics.FramesDropped.Inc()
		}
	}
}

// DroppedFrames counts frames lost to queue overflow.
func (s *Sink) DroppedFrames() int64 {
	return s.dropped.Load()
}

func (s *Sink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-s.frames:
			s.handleFrame(f)
		case <-ticker.C:
			s.flushSilent()
		case <-s.done:
			s.drainBacklog()
			for _, u := range s.buffer.DrainAll() {
				s.processUtterance(u)
			}
			return
		}
	}
}

func (s *Sink) drainBacklog() {
	for {
		select {
		case f := <-s.frames:
			s.handleFrame(f)
		default:
			return
		}
	}
}

func (s *Sink) handleFrame(f frame) {
	if s.audioStartAt.IsZero() {
		s.audioStartAt = f.at
	}

	// Archive before segmentation: the raw recording must stay complete
	// even for speakers the buffer cap turns away.
	if s.cfg.ArchiveAudio {
		if err := s.archiver.WriteChunk(f.userID, f.pcm); err != nil {
			slog.Error("failed to archive chunk", "error", err, "user_id", f.userID)
		}
	}

	evicted, ok := s.buffer.AddAudio(f.userID, f.pcm, f.at)
	if !ok {
		slog.Debug("speaker cap reached; dropping chunk", "user_id", f.userID)
		if s.metrics != nil {
			s.metrics.FramesDropped.Inc()
		}
		return
	}
	if evicted > 0 && s.metrics != nil {
		s.metrics.FramesDropped.Add(float64(evicted))
	}
}

func (s *Sink) flushSilent() {
	now := s.now()
	for _, userID := range s.buffer.TrackedSpeakers() {
		if !s.buffer.IsSpeakerDone(userID, now) {
			continue
		}
		u, err := s.buffer.FlushSpeaker(userID)
		if err != nil {
			slog.Error("failed to flush speaker", "error", err, "user_id", userID)
			continue
		}
		s.processUtterance(u)
	}
}

func (s *Sink) processUtterance(u Utterance) {
	if s.metrics != nil {
		s.metrics.UtterancesFlushed.Inc()
	}
	if s.cfg.Session.Mode != ModeTranscribing || s.adapter == nil {
		return
	}

	if s.metrics != nil {
		s.metrics.TranscriptionRequests.Inc()
	}
	res := s.adapter.Transcribe(context.Background(), u.WAV)
	if s.metrics != nil {
		switch {
		case res.ErrorText != "":
			s.metrics.TranscriptionFailures.Inc()
		case res.Text == "":
			s.metrics.TranscriptionSkipped.Inc()
		}
	}

	ev := TranscriptionEvent{
		SessionID:   s.cfg.Session.SessionID,
		GuildID:     s.cfg.Session.GuildID,
		UserID:      u.UserID,
		EventSource: s.cfg.EventSource,
		StartedAt:   u.StartedAt.UTC(),
		EndedAt:     u.EndedAt.UTC(),
		Text:        res.Text,
		IsNoise:     res.IsNoise,
		ErrorText:   res.ErrorText,
	}
	if p, ok := s.cfg.Session.Players[u.UserID]; ok {
		ev.Player = p.Player
		ev.Character = p.Character
	}

	if s.eventLog != nil {
		if err := s.eventLog.Append(ev); err != nil {
			slog.Error("failed to append transcript event", "error", err, "session_id", ev.SessionID)
		}
	}
	s.eventCount.Add(1)
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

// Cleanup drains buffered audio, finalizes the archive, merges the sink's
// observations into the session meta file and closes everything. It runs
// exactly once; later calls return the first result.
func (s *Sink) Cleanup(ctx context.Context) (CleanupResult, error) {
	s.cleanupOnce.Do(func() {
		s.cleanupRes, s.cleanupErr = s.cleanup(ctx)
	})
	return s.cleanupRes, s.cleanupErr
}

func (s *Sink) cleanup(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult

	switch SinkState(s.state.Load()) {
	case SinkRunning:
		s.state.Store(int32(SinkDraining))
		close(s.done)
		s.wg.Wait()
	case SinkIdle:
		// Never started; nothing buffered.
	default:
		return res, nil
	}
	defer s.state.Store(int32(SinkClosed))

	res.BytesArchived = s.archiver.BytesWritten()
	if s.metrics != nil && res.BytesArchived > 0 {
		s.metrics.ArchivedBytes.Add(float64(res.BytesArchived))
	}

	files, archiveErr := s.archiver.Close(ctx)
	if archiveErr != nil {
		slog.Error("archive finalization reported errors", "error", archiveErr, "session_id", s.cfg.Session.SessionID)
	}
	res.AudioFiles = files
	res.EventCount = int(s.eventCount.Load())

	if s.eventLog != nil {
		res.EventLogPath = EventLogPath(s.cfg.Session.BaseDir)
		if err := s.eventLog.Close(); err != nil {
			slog.Error("failed to close event log", "error", err, "session_id", s.cfg.Session.SessionID)
		}
	}

	if err := MergeMetaExtras(s.cfg.Session.MetaPath, s.extras()); err != nil {
		slog.Error("failed to merge sink extras into session meta", "error", err, "session_id", s.cfg.Session.SessionID)
	}

	return res, archiveErr
}

func (s *Sink) extras() map[string]any {
	extras := make(map[string]any)
	if !s.audioStartAt.IsZero() {
		extras["audio_start_ts"] = s.audioStartAt.UTC().Format(time.RFC3339Nano)

		offsets := make(map[string]float64)
		for userID, at := range s.buffer.FirstSeen() {
			offsets[userID] = at.Sub(s.audioStartAt).Seconds()
		}
		if len(offsets) > 0 {
			extras["user_first_offset_seconds"] = offsets
		}
	}

	if len(s.cfg.Session.Players) > 0 {
		playerMap := make(map[string]map[string]string, len(s.cfg.Session.Players))
		for userID, p := range s.cfg.Session.Players {
			playerMap[userID] = map[string]string{
				"player":    p.Player,
				"character": p.Character,
			}
		}
		extras["player_map"] = playerMap
	}

	if dropped := s.dropped.Load(); dropped > 0 {
		extras["dropped_frames"] = dropped
	}
	return extras
}
