package audio

import (
	internalaudio "github.com/kotonoha-lab/kikitori/internal/audio"
	"github.com/kotonoha-lab/kikitori/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (internalaudio.DeviceFactory, error) {
		c := do.MustInvoke[*config.Config](i)
		return func() (internalaudio.Device, error) {
			return NewCaptureDevice(c.CaptureDeviceName)
		}, nil
	})
}
