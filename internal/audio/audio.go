package audio

import "context"

// PCM parameters of Discord voice receive. Fixed by the transport; the
// archiver and segmentation buffer are constructed with these values.
const (
	SampleRate  = 48000
	Channels    = 2
	SampleWidth = 2
)

// Decoder turns compressed voice packets into PCM frames. One decoder
// instance serves one sink and keeps per-speaker decode state.
type Decoder interface {
	Decode(userID string, packet []byte) ([]byte, error)
	Close()
}

type DecoderFactory func() Decoder

// Converter transcodes a finished WAV file into a target container.
// Implementations must leave srcPath untouched on failure.
type Converter interface {
	Convert(ctx context.Context, srcPath, dstPath, format string) error
}
