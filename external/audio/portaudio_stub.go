//go:build !portaudio

package audio

import (
	"context"

	internalaudio "github.com/kotonoha-lab/kikitori/internal/audio"
)

// silentDevice stands in for the microphone on builds without the portaudio
// tag (CI, the API-only backend). It produces no frames.
type silentDevice struct {
	frames chan []int16
	cancel context.CancelFunc
}

func NewCaptureDevice(_ string) (internalaudio.Device, error) {
	return &silentDevice{frames: make(chan []int16)}, nil
}

func (d *silentDevice) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		close(d.frames)
	}()
	return nil
}

func (d *silentDevice) Frames() <-chan []int16 {
	return d.frames
}

func (d *silentDevice) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}
