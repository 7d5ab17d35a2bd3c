package audio

import (
	"errors"
	"time"
)

// ErrDeviceUnavailable indicates an audio device could not be acquired or
// opened.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// OutputDevice is a mono PCM16 playback device. Implementations are not
// required to be safe for concurrent Write calls; the sink serializes them.
type OutputDevice interface {
	// Start acquires the device and begins the output stream.
	Start() error

	// Write plays one chunk of samples. It may block for up to the chunk's
	// duration.
	Write(samples []int16) error

	// Stop halts output immediately, discarding any device-buffered audio.
	// The device can be started again afterwards.
	Stop() error

	// Close releases the device.
	Close() error
}

// InputDevice is a mono PCM16 capture device. The device pushes chunks at its
// natural buffer cadence.
type InputDevice interface {
	// Start acquires the device and begins invoking onChunk with each
	// captured buffer until Stop is called.
	Start(onChunk func(samples []int16)) error

	// Stop halts capture. The device can be started again afterwards.
	Stop() error

	// Close releases the device.
	Close() error
}

// Clock abstracts wall time for the sink's playback scheduler so tests can
// drive it deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
