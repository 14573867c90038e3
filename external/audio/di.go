package audio

import (
	"github.com/foxseedlab/rokuonkun/internal/audio"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.Converter, error) {
		return NewFFmpegConverter(), nil
	})
	do.ProvideValue(injector, audio.DecoderFactory(func() audio.Decoder {
		return NewOpusDecoder()
	}))
}
