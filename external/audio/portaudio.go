//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	internalaudio "github.com/kotonoha-lab/kikitori/internal/audio"
)

const framesPerBuffer = 512

// portaudioDevice captures mono PCM16 from a microphone via PortAudio.
type portaudioDevice struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	deviceName string
	frames     chan []int16
	cancel     context.CancelFunc
	closed     bool
}

// NewCaptureDevice initializes PortAudio and opens the input device.
// "Permission denied"-style host errors are mapped to
// internalaudio.ErrPermissionDenied so the session layer can report them
// distinctly.
func NewCaptureDevice(deviceName string) (internalaudio.Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, classifyAcquisitionError(err)
	}
	return &portaudioDevice{
		deviceName: deviceName,
		frames:     make(chan []int16, 64),
	}, nil
}

func (d *portaudioDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return fmt.Errorf("capture already started")
	}

	buffer := make([]int16, framesPerBuffer)
	stream, err := d.openStream(buffer)
	if err != nil {
		return classifyAcquisitionError(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return classifyAcquisitionError(err)
	}
	d.stream = stream

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	go d.captureLoop(loopCtx, buffer)
	return nil
}

func (d *portaudioDevice) openStream(buffer []int16) (*portaudio.Stream, error) {
	if d.deviceName == "" || d.deviceName == "default" {
		return portaudio.OpenDefaultStream(
			internalaudio.Channels, 0,
			float64(internalaudio.SampleRate), framesPerBuffer, buffer,
		)
	}
	device, err := findInputDevice(d.deviceName)
	if err != nil {
		return nil, err
	}
	return portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: internalaudio.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(internalaudio.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, buffer)
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("input device not found: %s", name)
}

func (d *portaudioDevice) captureLoop(ctx context.Context, buffer []int16) {
	defer close(d.frames)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := d.readFrame(buffer); err != nil {
			return
		}
		samples := make([]int16, len(buffer))
		copy(samples, buffer)
		select {
		case d.frames <- samples:
		case <-ctx.Done():
			return
		}
	}
}

func (d *portaudioDevice) readFrame(buffer []int16) error {
	d.mu.Lock()
	stream := d.stream
	closed := d.closed
	d.mu.Unlock()
	if closed || stream == nil {
		return fmt.Errorf("capture stopped")
	}
	_ = buffer
	return stream.Read()
}

func (d *portaudioDevice) Frames() <-chan []int16 {
	return d.frames
}

func (d *portaudioDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	stream := d.stream
	d.stream = nil
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if stream != nil {
		_ = stream.Stop()
		err = stream.Close()
	}
	_ = portaudio.Terminate()
	return err
}

func classifyAcquisitionError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") {
		return fmt.Errorf("%w: %v", internalaudio.ErrPermissionDenied, err)
	}
	return err
}
