package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/foxseedlab/rokuonkun/internal/audio"
)

type stubConverter struct {
	calls []string
	err   error
}

func (c *stubConverter) Convert(_ context.Context, srcPath, dstPath, _ string) error {
	c.calls = append(c.calls, srcPath)
	if c.err != nil {
		return c.err
	}
	return os.WriteFile(dstPath, []byte("converted"), 0o644)
}

func TestArchiver_StreamsPerSpeakerWAV(t *testing.T) {
	dir := t.TempDir()
	a := NewArchiver(dir, "wav", nil)

	if err := a.WriteChunk("u1", []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("failed to write chunk: %v", err)
	}
	if err := a.WriteChunk("u1", []byte{5, 6}); err != nil {
		t.Fatalf("failed to write chunk: %v", err)
	}
	if err := a.WriteChunk("u2", []byte{7, 8}); err != nil {
		t.Fatalf("failed to write chunk: %v", err)
	}

	if got := a.SpeakerCount(); got != 2 {
		t.Fatalf("expected 2 speakers, got %d", got)
	}
	if got := a.BytesWritten(); got != 8 {
		t.Fatalf("expected 8 archived bytes, got %d", got)
	}

	files, err := a.Close(context.Background())
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if files["u1"] != filepath.Join(dir, "user_u1.wav") {
		t.Fatalf("unexpected path for u1: %q", files["u1"])
	}

	blob, err := os.ReadFile(files["u1"])
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}
	if _, err := audio.Duration(blob); err != nil {
		t.Fatalf("archive is not a valid wav: %v", err)
	}
}

func TestArchiver_ConvertsOnClose(t *testing.T) {
	dir := t.TempDir()
	conv := &stubConverter{}
	a := NewArchiver(dir, "mp3", conv)

	if err := a.WriteChunk("u1", []byte{1, 2}); err != nil {
		t.Fatalf("failed to write chunk: %v", err)
	}
	files, err := a.Close(context.Background())
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if files["u1"] != filepath.Join(dir, "user_u1.mp3") {
		t.Fatalf("expected converted path, got %q", files["u1"])
	}
	if len(conv.calls) != 1 {
		t.Fatalf("expected 1 conversion, got %d", len(conv.calls))
	}
	if _, err := os.Stat(filepath.Join(dir, "user_u1.wav")); !os.IsNotExist(err) {
		t.Fatal("expected wav to be removed after successful conversion")
	}
}

func TestArchiver_KeepsWAVWhenConversionFails(t *testing.T) {
	dir := t.TempDir()
	conv := &stubConverter{err: errors.New("ffmpeg not found")}
	a := NewArchiver(dir, "mp3", conv)

	if err := a.WriteChunk("u1", []byte{1, 2}); err != nil {
		t.Fatalf("failed to write chunk: %v", err)
	}
	files, err := a.Close(context.Background())
	if err == nil {
		t.Fatal("expected close to report the conversion failure")
	}

	wavPath := filepath.Join(dir, "user_u1.wav")
	if files["u1"] != wavPath {
		t.Fatalf("expected wav path to be kept, got %q", files["u1"])
	}
	if _, err := os.Stat(wavPath); err != nil {
		t.Fatalf("expected wav to survive failed conversion: %v", err)
	}
}

func TestArchiver_CloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	conv := &stubConverter{}
	a := NewArchiver(dir, "mp3", conv)

	if err := a.WriteChunk("u1", []byte{1, 2}); err != nil {
		t.Fatalf("failed to write chunk: %v", err)
	}
	first, err := a.Close(context.Background())
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	second, err := a.Close(context.Background())
	if err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	if len(conv.calls) != 1 {
		t.Fatalf("expected conversion to run once, got %d", len(conv.calls))
	}
	if first["u1"] != second["u1"] {
		t.Fatal("expected repeated close to return the same result")
	}
	if err := a.WriteChunk("u1", []byte{9}); err == nil {
		t.Fatal("expected write after close to fail")
	}
}
