package session

import (
	"fmt"
	"time"

	"github.com/foxseedlab/rokuonkun/internal/audio"
)

// BufferConfig bounds the in-memory segmentation state.
type BufferConfig struct {
	// SilenceThreshold is the gap after a speaker's last chunk that closes
	// their current utterance.
	SilenceThreshold time.Duration
	// QueueLimit caps buffered chunks per speaker; the oldest chunk is
	// evicted when the cap is hit. Zero or negative means unlimited.
	QueueLimit int
	// MaxSpeakers caps concurrently tracked speakers. Zero or negative
	// means unlimited.
	MaxSpeakers int
}

type speakerState struct {
	chunks      [][]byte
	utteranceAt time.Time
	lastChunkAt time.Time
	evicted     int
}

// Utterance is one flushed speech segment, ready for archival or
// transcription.
type Utterance struct {
	UserID    string
	WAV       []byte
	StartedAt time.Time
	EndedAt   time.Time
	Evicted   int
}

// Buffer groups per-speaker PCM chunks into utterances, cutting a segment
// whenever a speaker has been silent for at least the configured threshold.
// It is not safe for concurrent use; the sink's run loop is its only caller.
type Buffer struct {
	cfg       BufferConfig
	speakers  map[string]*speakerState
	firstSeen map[string]time.Time
	rejected  int
}

func NewBuffer(cfg BufferConfig) *Buffer {
	return &Buffer{
		cfg:       cfg,
		speakers:  make(map[string]*speakerState),
		firstSeen: make(map[string]time.Time),
	}
}

// AddAudio appends one chunk to the speaker's open utterance. It reports how
// many old chunks were evicted to stay under the queue limit, and false when
// the chunk was rejected because the speaker cap is already full.
func (b *Buffer) AddAudio(userID string, pcm []byte, now time.Time) (evicted int, ok bool) {
	if len(pcm) == 0 {
		return 0, true
	}

	st, tracked := b.speakers[userID]
	if !tracked {
		if b.cfg.MaxSpeakers > 0 && len(b.speakers) >= b.cfg.MaxSpeakers {
			b.rejected++
			return 0, false
		}
		st = &speakerState{utteranceAt: now}
		b.speakers[userID] = st
		if _, seen := b.firstSeen[userID]; !seen {
			b.firstSeen[userID] = now
		}
	}

	st.chunks = append(st.chunks, pcm)
	st.lastChunkAt = now
	if b.cfg.QueueLimit > 0 {
		for len(st.chunks) > b.cfg.QueueLimit {
			st.chunks = st.chunks[1:]
			st.evicted++
			evicted++
		}
	}
	return evicted, true
}

// TrackedSpeakers lists speakers with an open utterance.
func (b *Buffer) TrackedSpeakers() []string {
	ids := make([]string, 0, len(b.speakers))
	for id := range b.speakers {
		ids = append(ids, id)
	}
	return ids
}

// IsSpeakerDone reports whether the speaker's silence gap has reached the
// threshold. The comparison is inclusive: a gap exactly at the threshold
// closes the utterance.
func (b *Buffer) IsSpeakerDone(userID string, now time.Time) bool {
	st, ok := b.speakers[userID]
	if !ok {
		return false
	}
	return now.Sub(st.lastChunkAt) >= b.cfg.SilenceThreshold
}

// FlushSpeaker cuts the speaker's open utterance, encodes it as WAV and drops
// the speaker from the tracked set. The speaker re-enters tracking on their
// next chunk.
func (b *Buffer) FlushSpeaker(userID string) (Utterance, error) {
	st, ok := b.speakers[userID]
	if !ok {
		return Utterance{}, fmt.Errorf("speaker %s is not tracked", userID)
	}
	delete(b.speakers, userID)

	wav, err := audio.EncodeWAV(st.chunks, audio.Channels, audio.SampleWidth, audio.SampleRate)
	if err != nil {
		return Utterance{}, fmt.Errorf("encode utterance for speaker %s: %w", userID, err)
	}
	return Utterance{
		UserID:    userID,
		WAV:       wav,
		StartedAt: st.utteranceAt,
		EndedAt:   st.lastChunkAt,
		Evicted:   st.evicted,
	}, nil
}

// DrainAll flushes every open utterance regardless of silence gaps. Used when
// the sink drains on session stop.
func (b *Buffer) DrainAll() []Utterance {
	out := make([]Utterance, 0, len(b.speakers))
	for userID := range b.speakers {
		u, err := b.FlushSpeaker(userID)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}

// FirstSeen maps each speaker to the instant of their first chunk in this
// session. Survives flushes; used for the per-user offset metadata.
func (b *Buffer) FirstSeen() map[string]time.Time {
	out := make(map[string]time.Time, len(b.firstSeen))
	for id, at := range b.firstSeen {
		out[id] = at
	}
	return out
}

// RejectedChunks counts chunks refused by the speaker cap.
func (b *Buffer) RejectedChunks() int {
	return b.rejected
}
