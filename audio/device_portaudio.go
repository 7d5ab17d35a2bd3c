//go:build portaudio

package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	channels = 1 // mono

	// captureFramesPerBuffer is 100ms of audio at 16kHz, the natural chunk
	// cadence forwarded to the wire.
	captureFramesPerBuffer = 1600

	// playbackFramesPerBuffer is 40ms of audio at 24kHz.
	playbackFramesPerBuffer = 960

	// fallbackCaptureRate is tried when the input device cannot open at the
	// requested rate. 48kHz is natively supported by nearly every device;
	// captured buffers are downsampled before they are forwarded.
	fallbackCaptureRate = 48000
)

var (
	paInitMu  sync.Mutex
	paInitRef int
)

func paAcquire() error {
	paInitMu.Lock()
	defer paInitMu.Unlock()
	if paInitRef == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("initialize portaudio: %w", err)
		}
	}
	paInitRef++
	return nil
}

func paRelease() {
	paInitMu.Lock()
	defer paInitMu.Unlock()
	paInitRef--
	if paInitRef == 0 {
		_ = portaudio.Terminate()
	}
}

// speakerDevice plays mono PCM16 through the default output device.
type speakerDevice struct {
	rate float64

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

// NewSpeakerDevice returns an OutputDevice backed by the default PortAudio
// output stream at the given sample rate.
func NewSpeakerDevice(sampleRate int) OutputDevice {
	return &speakerDevice{rate: float64(sampleRate)}
}

func (d *speakerDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return nil
	}
	if err := paAcquire(); err != nil {
		return err
	}

	d.buf = make([]int16, playbackFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, channels, d.rate, playbackFramesPerBuffer, d.buf)
	if err != nil {
		paRelease()
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		paRelease()
		return fmt.Errorf("start output stream: %w", err)
	}
	d.stream = stream
	return nil
}

func (d *speakerDevice) Write(samples []int16) error {
	d.mu.Lock()
	stream, buf := d.stream, d.buf
	d.mu.Unlock()
	if stream == nil {
		return fmt.Errorf("output stream not started")
	}

	for len(samples) > 0 {
		n := copy(buf, samples)
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
		samples = samples[n:]
	}
	return nil
}

func (d *speakerDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	err := d.stream.Abort()
	_ = d.stream.Close()
	d.stream = nil
	paRelease()
	if err != nil {
		return fmt.Errorf("abort output stream: %w", err)
	}
	return nil
}

func (d *speakerDevice) Close() error {
	return d.Stop()
}

// microphoneDevice captures mono PCM16 from the default input device.
type microphoneDevice struct {
	rate float64

	mu     sync.Mutex
	stream *portaudio.Stream
	done   chan struct{}
}

// NewMicrophoneDevice returns an InputDevice backed by the default PortAudio
// input stream at the given sample rate.
func NewMicrophoneDevice(sampleRate int) InputDevice {
	return &microphoneDevice{rate: float64(sampleRate)}
}

func (d *microphoneDevice) Start(onChunk func(samples []int16)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return fmt.Errorf("input stream already started")
	}
	if err := paAcquire(); err != nil {
		return err
	}

	deviceRate := int(d.rate)
	in := make([]int16, captureFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(channels, 0, d.rate, captureFramesPerBuffer, in)
	if err != nil && deviceRate != fallbackCaptureRate {
		// Keep the buffer at 100ms of audio so chunk cadence is unchanged.
		frames := captureFramesPerBuffer * fallbackCaptureRate / deviceRate
		in = make([]int16, frames)
		stream, err = portaudio.OpenDefaultStream(channels, 0, float64(fallbackCaptureRate), frames, in)
		deviceRate = fallbackCaptureRate
	}
	if err != nil {
		paRelease()
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		paRelease()
		return fmt.Errorf("start input stream: %w", err)
	}
	d.stream = stream
	d.done = make(chan struct{})

	go d.captureLoop(stream, in, deviceRate, onChunk, d.done)
	return nil
}

func (d *microphoneDevice) captureLoop(stream *portaudio.Stream, in []int16, deviceRate int, onChunk func([]int16), done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			select {
			case <-done:
			default:
				continue
			}
			return
		}

		chunk := make([]int16, len(in))
		copy(chunk, in)
		if deviceRate != CaptureRate {
			data, err := ResampleToCaptureRate(EncodeSamples(chunk), deviceRate)
			if err != nil {
				continue
			}
			chunk, err = DecodeSamples(data)
			if err != nil {
				continue
			}
		}
		onChunk(chunk)
	}
}

func (d *microphoneDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	close(d.done)
	err := d.stream.Abort()
	_ = d.stream.Close()
	d.stream = nil
	paRelease()
	if err != nil {
		return fmt.Errorf("abort input stream: %w", err)
	}
	return nil
}

func (d *microphoneDevice) Close() error {
	return d.Stop()
}
