// Package audio defines the capture-device contract and PCM chunk encoding.
package audio

import (
	"context"
	"errors"
)

const (
	// SampleRate is the capture rate; 16kHz mono is what speech models want.
	SampleRate = 16000

	Channels = 1
	BitDepth = 16
)

// ErrPermissionDenied distinguishes "the OS refused microphone access" from
// every other acquisition failure.
var ErrPermissionDenied = errors.New("audio capture permission denied")

// Device is a microphone acquired once per recording session. Frames yields
// PCM16 sample blocks until Close.
type Device interface {
	Start(ctx context.Context) error
	Frames() <-chan []int16
	Close() error
}

// DeviceFactory acquires a capture device. Acquisition failures surface here,
// not at construction of the factory.
type DeviceFactory func() (Device, error)
