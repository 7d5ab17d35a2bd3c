package client

import (
	"github.com/auralis-ai/geminilive/audio"
	"github.com/auralis-ai/geminilive/capture"
	"github.com/auralis-ai/geminilive/tools"
	"github.com/auralis-ai/geminilive/transcription"
)

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	outputDevice audio.OutputDevice
	inputDevice  audio.InputDevice
	clock        audio.Clock
	cameraSource capture.FrameSource
	screenSource capture.FrameSource
	registry     *tools.Registry
	forwarder    transcription.Forwarder
}

// WithOutputDevice overrides the playback device.
//
//	c, _ := client.New(cfg,
//	    client.WithOutputDevice(myDevice),
//	)
func WithOutputDevice(dev audio.OutputDevice) Option {
	return func(o *clientOptions) {
		o.outputDevice = dev
	}
}

// WithInputDevice overrides the microphone device.
func WithInputDevice(dev audio.InputDevice) Option {
	return func(o *clientOptions) {
		o.inputDevice = dev
	}
}

// WithClock overrides the playback scheduler clock. Intended for tests.
func WithClock(clock audio.Clock) Option {
	return func(o *clientOptions) {
		o.clock = clock
	}
}

// WithCameraSource overrides the camera frame source.
func WithCameraSource(src capture.FrameSource) Option {
	return func(o *clientOptions) {
		o.cameraSource = src
	}
}

// WithScreenSource overrides the screen frame source.
func WithScreenSource(src capture.FrameSource) Option {
	return func(o *clientOptions) {
		o.screenSource = src
	}
}

// WithTools sets the tool registry whose declarations are advertised during
// setup and whose handlers service the model's tool calls.
//
//	reg := tools.NewRegistry()
//	reg.Register(decl, handler)
//	c, _ := client.New(cfg, client.WithTools(reg))
func WithTools(reg *tools.Registry) Option {
	return func(o *clientOptions) {
		o.registry = reg
	}
}

// WithTranscriptionForwarder sets the destination for transcription
// fragments. Defaults to discarding them; events are published either way.
func WithTranscriptionForwarder(f transcription.Forwarder) Option {
	return func(o *clientOptions) {
		o.forwarder = f
	}
}
