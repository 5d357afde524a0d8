package session

import (
	"github.com/kotonoha-lab/kikitori/internal/annotator"
	"github.com/kotonoha-lab/kikitori/internal/audio"
	"github.com/kotonoha-lab/kikitori/internal/config"
	"github.com/kotonoha-lab/kikitori/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		stt := do.MustInvoke[transcriber.Transcriber](i)
		ann := do.MustInvoke[annotator.Annotator](i)
		newDevice := do.MustInvoke[audio.DeviceFactory](i)
		return NewManager(cfg, stt, ann, newDevice), nil
	})
}
