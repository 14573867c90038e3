package identity

import (
	"github.com/foxseedlab/rokuonkun/internal/config"
	identitypkg "github.com/foxseedlab/rokuonkun/internal/identity"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (identitypkg.Provider, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewYAMLProvider(c.PlayerMapDir), nil
	})
}
