package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/foxseedlab/rokuonkun/internal/audio"
)

// Archiver appends raw PCM to one WAV file per speaker. Files are created
// lazily on a speaker's first chunk and streamed to disk, so a multi-hour
// session never holds full recordings in memory. During the session the
// archive is always WAV; any other target format is produced by a conversion
// pass on Close.
type Archiver struct {
	audioDir  string
	format    string
	converter audio.Converter

	mu      sync.Mutex
	writers map[string]*audio.FileWriter
	closed  bool
	final   map[string]string
}

func NewArchiver(audioDir, format string, converter audio.Converter) *Archiver {
	return &Archiver{
		audioDir:  audioDir,
		format:    strings.ToLower(format),
		converter: converter,
		writers:   make(map[string]*audio.FileWriter),
	}
}

// WriteChunk appends one decoded PCM chunk to the speaker's archive file.
func (a *Archiver) WriteChunk(userID string, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("archiver is closed")
	}

	w, ok := a.writers[userID]
	if !ok {
		var err error
		w, err = audio.NewFileWriter(SpeakerAudioPath(a.audioDir, userID), audio.Channels, audio.SampleWidth, audio.SampleRate)
		if err != nil {
			return fmt.Errorf("open archive for user %s: %w", userID, err)
		}
		a.writers[userID] = w
	}
	return w.Write(pcm)
}

// BytesWritten is the total PCM payload archived so far, across all speakers.
func (a *Archiver) BytesWritten() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total int64
	for _, w := range a.writers {
		total += w.BytesWritten()
	}
	return total
}

// SpeakerCount is the number of speakers with at least one archived chunk.
func (a *Archiver) SpeakerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.writers)
}

// Close finalizes every speaker file and, when the target format is not WAV,
// converts each one. A failed conversion keeps the WAV in place so no audio
// is ever lost to a broken converter. Close is idempotent; repeated calls
// return the first run's result. Returned map is userID to final audio path.
func (a *Archiver) Close(ctx context.Context) (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return a.final, nil
	}
	a.closed = true
	a.final = make(map[string]string, len(a.writers))

	var errs []error
	for userID, w := range a.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("finalize archive for user %s: %w", userID, err))
			continue
		}
		a.final[userID] = w.Path()
	}

	if a.format != "wav" && a.converter != nil {
		for userID, srcPath := range a.final {
			dstPath := convertedPath(srcPath, a.format)
			if err := a.converter.Convert(ctx, srcPath, dstPath, a.format); err != nil {
				slog.Error("audio conversion failed; keeping wav archive",
					"error", err, "user_id", userID, "path", srcPath, "format", a.format)
				errs = append(errs, fmt.Errorf("convert archive for user %s: %w", userID, err))
				continue
			}
			if err := os.Remove(srcPath); err != nil {
				slog.Warn("could not remove wav after conversion", "error", err, "path", srcPath)
			}
			a.final[userID] = dstPath
		}
	}

	return a.final, errors.Join(errs...)
}

func convertedPath(wavPath, format string) string {
	base := strings.TrimSuffix(wavPath, filepath.Ext(wavPath))
	return base + "." + format
}
