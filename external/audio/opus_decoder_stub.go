//go:build !opus

package audio

import internalaudio "github.com/foxseedlab/rokuonkun/internal/audio"

// Builds without the opus tag skip libopus (cgo); voice packets are silently
// dropped. Useful for CI and for running the bot without native deps.
type noopDecoder struct{}

func NewOpusDecoder() internalaudio.Decoder {
	return &noopDecoder{}
}

func (d *noopDecoder) Decode(_ string, _ []byte) ([]byte, error) {
	return nil, nil
}

func (d *noopDecoder) Close() {}
