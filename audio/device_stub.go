//go:build !portaudio

package audio

import "fmt"

// Stub devices when portaudio is not available. Rebuild with -tags portaudio
// for real capture and playback.

type speakerDevice struct{}

// NewSpeakerDevice returns an OutputDevice that fails to start.
func NewSpeakerDevice(_ int) OutputDevice { return &speakerDevice{} }

func (*speakerDevice) Start() error {
	return fmt.Errorf("playback not available: rebuild with -tags portaudio")
}
func (*speakerDevice) Write(_ []int16) error {
	return fmt.Errorf("playback not available")
}
func (*speakerDevice) Stop() error  { return nil }
func (*speakerDevice) Close() error { return nil }

type microphoneDevice struct{}

// NewMicrophoneDevice returns an InputDevice that fails to start.
func NewMicrophoneDevice(_ int) InputDevice { return &microphoneDevice{} }

func (*microphoneDevice) Start(_ func([]int16)) error {
	return fmt.Errorf("capture not available: rebuild with -tags portaudio")
}
func (*microphoneDevice) Stop() error  { return nil }
func (*microphoneDevice) Close() error { return nil }
