// Package client orchestrates a live session: it owns the protocol session,
// audio playback and capture, frame capturers, and the event surface the
// embedding application consumes.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/auralis-ai/geminilive/audio"
	"github.com/auralis-ai/geminilive/capture"
	"github.com/auralis-ai/geminilive/config"
	"github.com/auralis-ai/geminilive/events"
	"github.com/auralis-ai/geminilive/logger"
	"github.com/auralis-ai/geminilive/media"
	"github.com/auralis-ai/geminilive/metrics"
	"github.com/auralis-ai/geminilive/session"
	"github.com/auralis-ai/geminilive/tools"
	"github.com/auralis-ai/geminilive/transcription"
	"github.com/auralis-ai/geminilive/wire"
)

// Client is the top-level handle for one live conversation.
type Client struct {
	cfg  *config.Config
	opts clientOptions

	bus  *events.Bus
	sess *session.Session
	sink *audio.Sink
	mic  *audio.Source

	mu           sync.Mutex
	connected    bool
	initialized  bool
	disconnected bool
	micStarted   bool
	camera       *capture.Capturer
	screen       *capture.Capturer

	toolCtx    context.Context
	toolCancel context.CancelFunc
	toolWg     sync.WaitGroup
}

// New creates a Client from a validated configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := clientOptions{
		registry:  tools.NewRegistry(),
		forwarder: transcription.Discard,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.outputDevice == nil {
		o.outputDevice = audio.NewSpeakerDevice(cfg.Audio.PlaybackRate)
	}
	if o.inputDevice == nil {
		o.inputDevice = audio.NewMicrophoneDevice(cfg.Audio.CaptureRate)
	}
	if o.cameraSource == nil {
		o.cameraSource = capture.NewCameraSource(cfg.Video.CameraDevice)
	}
	if o.screenSource == nil {
		o.screenSource = capture.NewScreenSource(cfg.Video.ScreenDisplay)
	}

	sink, err := audio.NewSink(audio.SinkConfig{
		Device:     o.outputDevice,
		SampleRate: cfg.Audio.PlaybackRate,
		Gain:       cfg.Audio.Gain,
		Clock:      o.clock,
	})
	if err != nil {
		return nil, err
	}

	mic, err := audio.NewSource(o.inputDevice)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:  cfg,
		opts: o,
		bus:  events.NewBus(),
		sink: sink,
		mic:  mic,
	}
	c.toolCtx, c.toolCancel = context.WithCancel(context.Background())

	c.sess, err = session.New(session.Config{
		URL:               cfg.WebSocketURL(),
		Setup:             c.buildSetup(),
		OnEvent:           c.route,
		OnClosed:          c.onSessionClosed,
		DialTimeout:       cfg.Transport.DialTimeout,
		SetupDeadline:     cfg.Transport.SetupDeadline,
		HeartbeatInterval: cfg.Transport.HeartbeatInterval,
		MaxRetries:        cfg.Transport.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// buildSetup assembles the setup payload from configuration and registered
// tools.
func (c *Client) buildSetup() wire.Setup {
	gen := &wire.GenerationConfig{
		Temperature:        c.cfg.Generation.Temperature,
		TopP:               c.cfg.Generation.TopP,
		TopK:               c.cfg.Generation.TopK,
		ResponseModalities: c.cfg.Generation.ResponseModalities,
	}
	if c.cfg.Generation.Voice != "" {
		gen.SpeechConfig = &wire.SpeechConfig{
			VoiceConfig: &wire.VoiceConfig{
				PrebuiltVoiceConfig: &wire.PrebuiltVoiceConfig{VoiceName: c.cfg.Generation.Voice},
			},
		}
	}

	setup := wire.Setup{
		Model:            c.cfg.Model,
		GenerationConfig: gen,
		Tools:            c.opts.registry.Declarations(),
	}
	if c.cfg.SystemInstruction != "" {
		setup.SystemInstruction = &wire.Content{
			Parts: []wire.Part{{Text: c.cfg.SystemInstruction}},
		}
	}
	for _, s := range c.cfg.Safety {
		setup.SafetySettings = append(setup.SafetySettings, wire.SafetySetting{
			Category:  s.Category,
			Threshold: s.Threshold,
		})
	}
	if c.cfg.Transcription {
		setup.InputAudioTranscription = &wire.TranscriptionConfig{}
		setup.OutputAudioTranscription = &wire.TranscriptionConfig{}
	}
	return setup
}

// Events returns the bus the application subscribes to.
func (c *Client) Events() *events.Bus { return c.bus }

// SessionID returns the protocol session's unique identifier.
func (c *Client) SessionID() string { return c.sess.ID() }

// Connect establishes the session. On return the session is active and
// ready for audio, text, and frames.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return fmt.Errorf("client: already disconnected")
	}
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("client: already connected")
	}
	c.mu.Unlock()

	if err := c.sess.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// greetingTurn is the trivial opening turn that prompts the model to speak
// first once the session is live.
const greetingTurn = "Hello."

// Initialize primes the audio path and sends the opening text turn so the
// model speaks first. It may only be called on a connected client; repeat
// calls are no-ops. A missing microphone degrades to text-only input rather
// than failing initialization.
func (c *Client) Initialize() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return session.ErrNotConnected
	}
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initialized = true
	c.mu.Unlock()

	if err := c.StartMicrophone(); err != nil {
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			c.mu.Lock()
			c.initialized = false
			c.mu.Unlock()
			return err
		}
		logger.Warn("microphone unavailable, continuing text-only", "error", err)
	}

	if err := c.sess.SendText(greetingTurn); err != nil {
		c.mu.Lock()
		c.initialized = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// IsInitialized reports whether Initialize has completed.
func (c *Client) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// StartMicrophone begins streaming microphone audio to the model.
func (c *Client) StartMicrophone() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return session.ErrNotConnected
	}
	if c.micStarted {
		c.mu.Unlock()
		return nil
	}
	c.micStarted = true
	c.mu.Unlock()

	err := c.mic.Start(func(pcm []byte) {
		if err := c.sess.SendAudio(pcm); err != nil {
			logger.Debug("dropping mic chunk", "error", err)
		}
	})
	if err != nil {
		c.mu.Lock()
		c.micStarted = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// ToggleMic flips the microphone mute state and returns the new state, true
// meaning muted. The device stays open while muted.
func (c *Client) ToggleMic() bool {
	return c.mic.ToggleMute()
}

// SendText sends one user text turn and publishes a text_sent event on
// success.
func (c *Client) SendText(text string) error {
	if err := c.sess.SendText(text); err != nil {
		return err
	}
	c.bus.Publish(&events.Event{Kind: events.KindTextSent, Text: text})
	return nil
}

// SetGain adjusts playback volume.
func (c *Client) SetGain(gain float64) { c.sink.SetGain(gain) }

// StartCameraCapture begins sending camera frames at the configured rate.
func (c *Client) StartCameraCapture(ctx context.Context) error {
	return c.startCapture(ctx, c.opts.cameraSource, &c.camera, nil)
}

// StopCameraCapture stops camera frames. Safe when not capturing.
func (c *Client) StopCameraCapture() { c.stopCapture(&c.camera) }

// StartScreenShare begins sending screen frames at the configured rate. A
// screenshare_stopped event is published when the share ends for any reason,
// including the backing display going away.
func (c *Client) StartScreenShare(ctx context.Context) error {
	return c.startCapture(ctx, c.opts.screenSource, &c.screen, func(err error) {
		if err != nil {
			logger.Info("screen share ended externally", "error", err)
		}
		c.bus.Publish(&events.Event{Kind: events.KindScreenshareStopped})
	})
}

// StopScreenShare stops screen frames. Safe when not sharing.
func (c *Client) StopScreenShare() { c.stopCapture(&c.screen) }

func (c *Client) startCapture(ctx context.Context, src capture.FrameSource, slot **capture.Capturer, onEnded func(error)) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return session.ErrNotConnected
	}
	if *slot != nil && (*slot).IsRunning() {
		c.mu.Unlock()
		return fmt.Errorf("client: capture already running")
	}
	c.mu.Unlock()

	capt, err := capture.NewCapturer(capture.CapturerConfig{
		Source: src,
		FPS:    c.cfg.Video.FPS,
		Frame: media.FrameConfig{
			TargetWidth:  c.cfg.Video.FrameWidth,
			Quality:      c.cfg.Video.FrameQuality,
			MaxSizeBytes: c.cfg.Video.MaxFrameBytes,
		},
		OnFrame: func(frame *media.Frame) {
			if err := c.sess.SendFrame(frame.Data, frame.MIMEType); err != nil {
				logger.Debug("dropping video frame", "error", err)
			}
		},
		OnEnded: onEnded,
	})
	if err != nil {
		return err
	}
	if err := capt.Start(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	*slot = capt
	c.mu.Unlock()
	return nil
}

func (c *Client) stopCapture(slot **capture.Capturer) {
	c.mu.Lock()
	capt := *slot
	*slot = nil
	c.mu.Unlock()
	if capt != nil {
		capt.Stop()
	}
}

// Disconnect tears everything down: capturers, microphone, playback, and the
// protocol session. It is idempotent and safe to call from event listeners.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return nil
	}
	c.disconnected = true
	c.connected = false
	c.mu.Unlock()

	c.StopCameraCapture()
	c.StopScreenShare()

	c.toolCancel()
	c.toolWg.Wait()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(c.mic.Close())
	record(c.sink.Close())
	record(c.sess.Close())

	logger.Info("client disconnected", "session_id", c.sess.ID())
	return firstErr
}

// route dispatches one decoded protocol event. It runs on the session's
// single receive goroutine, so ordering here is wire ordering: in particular
// an interruption silences playback before any audio that follows it.
func (c *Client) route(evt wire.Event) {
	switch e := evt.(type) {
	case wire.AudioEvent:
		if err := c.sink.Stream(e.Data); err != nil {
			logger.Warn("failed to queue playback", "error", err)
		}
		c.bus.Publish(&events.Event{Kind: events.KindAudio, Audio: e.Data})

	case wire.TextEvent:
		c.bus.Publish(&events.Event{Kind: events.KindText, Text: e.Text})

	case wire.InterruptedEvent:
		if err := c.sink.Stop(); err != nil {
			logger.Warn("failed to stop playback on interruption", "error", err)
		}
		c.bus.Publish(&events.Event{Kind: events.KindInterrupted})

	case wire.TurnCompleteEvent:
		c.bus.Publish(&events.Event{Kind: events.KindTurnComplete})

	case wire.ToolCallEvent:
		c.handleToolCall(e)

	case wire.TranscriptionEvent:
		c.opts.forwarder.Model(e.Text)
		c.bus.Publish(&events.Event{Kind: events.KindTranscription, Text: e.Text})

	case wire.UserTranscriptionEvent:
		c.opts.forwarder.User(e.Text)
		c.bus.Publish(&events.Event{Kind: events.KindUserTranscription, Text: e.Text})
	}
}

// handleToolCall publishes the event and services the whole batch off the
// receive goroutine, answering with a single response envelope.
func (c *Client) handleToolCall(e wire.ToolCallEvent) {
	invocations := make([]events.ToolInvocation, 0, len(e.Calls))
	for _, call := range e.Calls {
		invocations = append(invocations, events.ToolInvocation{
			ID:   call.ID,
			Name: call.Name,
			Args: call.Args,
		})
		metrics.RecordToolCall(call.Name)
	}
	c.bus.Publish(&events.Event{Kind: events.KindToolCall, ToolCalls: invocations})

	calls := e.Calls
	c.toolWg.Add(1)
	go func() {
		defer c.toolWg.Done()
		responses := c.opts.registry.Dispatch(c.toolCtx, calls)
		if err := c.sess.SendToolResponse(responses); err != nil {
			logger.Warn("failed to send tool responses", "error", err)
		}
	}()
}

// onSessionClosed runs when the protocol session ends for any reason. After
// it returns no new microphone, capture, or initialize work is accepted.
func (c *Client) onSessionClosed(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	if err != nil {
		logger.Warn("session ended", "session_id", c.sess.ID(), "error", err)
	}
}
