package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEncodeWAV_HeaderAndData(t *testing.T) {
	chunks := [][]byte{{1, 2, 3, 4}, {5, 6}}
	blob, err := EncodeWAV(chunks, 2, 2, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blob) != 44+6 {
		t.Fatalf("unexpected blob size: %d", len(blob))
	}
	if string(blob[0:4]) != "RIFF" || string(blob[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(blob[40:44]); got != 6 {
		t.Fatalf("unexpected data size: %d", got)
	}
	if !bytes.Equal(blob[44:], []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatal("data bytes not appended in order")
	}
}

func TestEncodeWAV_RejectsInvalidParameters(t *testing.T) {
	if _, err := EncodeWAV(nil, 0, 2, 48000); err == nil {
		t.Fatal("expected error for zero channels")
	}
}

func TestDuration(t *testing.T) {
	// One second of 48kHz 16-bit stereo PCM.
	pcm := make([]byte, 48000*2*2)
	blob, err := EncodeWAV([][]byte{pcm}, 2, 2, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err := Duration(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != time.Second {
		t.Fatalf("expected 1s, got %v", d)
	}
}

func TestDuration_RejectsGarbage(t *testing.T) {
	if _, err := Duration([]byte("not a wav")); err == nil {
		t.Fatal("expected error for short blob")
	}
	bad := make([]byte, 44)
	if _, err := Duration(bad); err == nil {
		t.Fatal("expected error for missing magic")
	}
}

func TestFileWriter_PatchesHeaderOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_1.wav")
	w, err := NewFileWriter(path, 2, 2, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := make([]byte, 1000)
	if err := w.Write(payload); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if w.BytesWritten() != 1000 {
		t.Fatalf("unexpected bytes written: %d", w.BytesWritten())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if got := binary.LittleEndian.Uint32(blob[40:44]); got != 1000 {
		t.Fatalf("header not patched, data size = %d", got)
	}
}

func TestFileWriter_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_2.wav")
	w, err := NewFileWriter(path, 2, 2, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if err := w.Write([]byte{1, 2}); err == nil {
		t.Fatal("expected write after close to fail")
	}
}
