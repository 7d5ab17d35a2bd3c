package audio

import (
	"fmt"
	"sync"
)

// Source captures microphone audio and forwards PCM16 chunks at the device's
// natural buffer cadence. Chunks are suppressed while the source is muted;
// the device stays open so unmuting resumes instantly.
type Source struct {
	device InputDevice

	mu      sync.Mutex
	started bool
	muted   bool
	onChunk func(pcm []byte)
}

// NewSource creates a Source over the given capture device.
func NewSource(device InputDevice) (*Source, error) {
	if device == nil {
		return nil, fmt.Errorf("source: input device is required")
	}
	return &Source{device: device}, nil
}

// Start acquires the device and begins forwarding captured chunks to onChunk.
// Starting an already started source is an error.
func (s *Source) Start(onChunk func(pcm []byte)) error {
	if onChunk == nil {
		return fmt.Errorf("source: chunk callback is required")
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("source: already started")
	}
	s.started = true
	s.onChunk = onChunk
	s.mu.Unlock()

	if err := s.device.Start(s.forward); err != nil {
		s.mu.Lock()
		s.started = false
		s.onChunk = nil
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

func (s *Source) forward(samples []int16) {
	s.mu.Lock()
	cb := s.onChunk
	suppress := s.muted || !s.started
	s.mu.Unlock()

	if suppress || cb == nil {
		return
	}
	cb(EncodeSamples(samples))
}

// ToggleMute flips the mute state and returns the new state, true meaning
// muted.
func (s *Source) ToggleMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = !s.muted
	return s.muted
}

// IsMuted reports the current mute state.
func (s *Source) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Stop halts capture and releases the callback. Safe to call when not
// started.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.onChunk = nil
	s.mu.Unlock()

	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("source: stop device: %w", err)
	}
	return nil
}

// Close stops capture and releases the device.
func (s *Source) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.device.Close()
}
