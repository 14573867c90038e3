package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

const wavHeaderSize = 44

// EncodeWAV assembles PCM chunks into a single in-memory WAV blob.
func EncodeWAV(chunks [][]byte, channels, sampleWidth, sampleRate int) ([]byte, error) {
	if channels <= 0 || sampleWidth <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav parameters: channels=%d sampleWidth=%d sampleRate=%d", channels, sampleWidth, sampleRate)
	}
	dataSize := 0
	for _, c := range chunks {
		dataSize += len(c)
	}
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))
	writeWAVHeader(buf, channels, sampleWidth, sampleRate, uint32(dataSize))
	for _, c := range chunks {
		buf.Write(c)
	}
	return buf.Bytes(), nil
}

// Duration reads the playback length of an in-memory WAV blob from its header.
func Duration(wav []byte) (time.Duration, error) {
	if len(wav) < wavHeaderSize {
		return 0, fmt.Errorf("wav blob too short: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0, fmt.Errorf("not a RIFF/WAVE blob")
	}
	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	dataSize := binary.LittleEndian.Uint32(wav[40:44])
	if byteRate == 0 {
		return 0, fmt.Errorf("wav header has zero byte rate")
	}
	seconds := float64(dataSize) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), nil
}

func writeWAVHeader(buf *bytes.Buffer, channels, sampleWidth, sampleRate int, dataSize uint32) {
	byteRate := uint32(sampleRate * channels * sampleWidth)
	blockAlign := uint16(channels * sampleWidth)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36)+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(sampleWidth*8))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
}

// FileWriter streams PCM bytes to a WAV file. The header is written with a
// placeholder size and patched when the writer is finalized, so a crash
// mid-session leaves a file that is still mostly recoverable.
type FileWriter struct {
	file        *os.File
	path        string
	channels    int
	sampleWidth int
	sampleRate  int
	dataBytes   int64
	closed      bool
}

func NewFileWriter(path string, channels, sampleWidth, sampleRate int) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}
	w := &FileWriter{
		file:        f,
		path:        path,
		channels:    channels,
		sampleWidth: sampleWidth,
		sampleRate:  sampleRate,
	}
	if err := w.writeHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func (w *FileWriter) writeHeader() error {
	if _, err := w.file.Seek(0, 0); err != nil {
		return err
	}
	var buf bytes.Buffer
	writeWAVHeader(&buf, w.channels, w.sampleWidth, w.sampleRate, uint32(w.dataBytes))
	_, err := w.file.Write(buf.Bytes())
	return err
}

func (w *FileWriter) Write(pcm []byte) error {
	if w.closed {
		return fmt.Errorf("wav writer for %s is closed", w.path)
	}
	n, err := w.file.Write(pcm)
	w.dataBytes += int64(n)
	return err
}

func (w *FileWriter) Path() string { return w.path }

func (w *FileWriter) BytesWritten() int64 { return w.dataBytes }

// Close patches the header with the final data size and closes the file.
func (w *FileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	headerErr := w.writeHeader()
	closeErr := w.file.Close()
	if headerErr != nil {
		return headerErr
	}
	return closeErr
}
