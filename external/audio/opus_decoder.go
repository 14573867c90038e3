//go:build opus

package audio

import (
	"fmt"
	"sync"

	internalaudio "github.com/foxseedlab/rokuonkun/internal/audio"
	"github.com/hraban/opus"
)

const (
	frameSizeMs     = 20
	samplesPerFrame = internalaudio.SampleRate * frameSizeMs * internalaudio.Channels / 1000
)

// OpusDecoder converts Discord opus packets into 48kHz/16-bit/stereo PCM.
// One libopus decoder is kept per speaking user; opus decoders are stateful
// and must not be shared across streams.
type OpusDecoder struct {
	mu       sync.Mutex
	decoders map[string]*opus.Decoder
	closed   bool
}

func NewOpusDecoder() internalaudio.Decoder {
	return &OpusDecoder{
		decoders: make(map[string]*opus.Decoder),
	}
}

func (d *OpusDecoder) Decode(userID string, packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("decoder is closed")
	}

	dec, ok := d.decoders[userID]
	if !ok {
		var err error
		dec, err = opus.NewDecoder(internalaudio.SampleRate, internalaudio.Channels)
		if err != nil {
			return nil, fmt.Errorf("create opus decoder: %w", err)
		}
		d.decoders[userID] = dec
	}

	pcm := make([]int16, samplesPerFrame)
	n, err := dec.Decode(packet, pcm)
	if err != nil {
		return nil, fmt.Errorf("decode opus packet: %w", err)
	}
	if n <= 0 {
		return nil, nil
	}

	totalSamples := n * internalaudio.Channels
	if totalSamples > samplesPerFrame {
		totalSamples = samplesPerFrame
	}
	out := make([]byte, totalSamples*2)
	for i := 0; i < totalSamples; i++ {
		out[2*i] = byte(pcm[i])
		out[2*i+1] = byte(pcm[i] >> 8)
	}
	return out, nil
}

func (d *OpusDecoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.decoders = nil
}
