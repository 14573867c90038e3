package discord

import (
	"github.com/foxseedlab/rokuonkun/internal/audio"
	"github.com/foxseedlab/rokuonkun/internal/config"
	discordpkg "github.com/foxseedlab/rokuonkun/internal/discord"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (discordpkg.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		newDecoder := do.MustInvoke[audio.DecoderFactory](i)
		return NewClient(c.DiscordToken, newDecoder), nil
	})
}
