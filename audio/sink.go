package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/auralis-ai/geminilive/logger"
)

// SinkConfig configures a playback Sink.
type SinkConfig struct {
	// Device is the playback device. Required.
	Device OutputDevice

	// SampleRate is the PCM sample rate of incoming chunks. Defaults to
	// PlaybackRate.
	SampleRate int

	// Gain is the initial gain factor. Defaults to 1.0.
	Gain float64

	// Clock drives the playback scheduler. Defaults to wall time.
	Clock Clock
}

// Sink plays a stream of PCM16 chunks back to back. Chunks are queued and
// scheduled on a monotonic clock so consecutive chunks neither overlap nor
// leave gaps, regardless of network arrival jitter. Stream never blocks the
// caller and never drops a chunk.
//
// Stop is the interruption primitive: it discards everything queued and
// deactivates the sink, and the next Stream call reactivates it.
type Sink struct {
	device OutputDevice
	rate   int
	clock  Clock

	mu          sync.Mutex
	queue       [][]int16
	gain        float64
	initialized bool
	nextStart   time.Time
	gen         int
	intr        chan struct{}
	closed      bool

	wake    chan struct{}
	closeCh chan struct{}
	runOnce sync.Once
	done    chan struct{}
}

// NewSink creates a Sink. The device is not acquired until the first Stream
// call.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("sink: output device is required")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = PlaybackRate
	}
	if cfg.Gain == 0 {
		cfg.Gain = 1.0
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &Sink{
		device:  cfg.Device,
		rate:    cfg.SampleRate,
		clock:   cfg.Clock,
		gain:    cfg.Gain,
		intr:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Stream queues one PCM16 chunk for playback. The first call after creation
// or after Stop acquires the device. Stream returns as soon as the chunk is
// queued.
func (s *Sink) Stream(pcm []byte) error {
	samples, err := DecodeSamples(pcm)
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("sink: closed")
	}
	if !s.initialized {
		if err := s.device.Start(); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		s.initialized = true
		s.nextStart = time.Time{}
	}
	s.queue = append(s.queue, samples)
	s.mu.Unlock()

	s.runOnce.Do(func() { go s.run() })

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop discards all queued audio, halts the device, and deactivates the sink.
// Safe to call at any time, including when nothing is playing.
func (s *Sink) Stop() error {
	s.mu.Lock()
	s.queue = nil
	s.gen++
	close(s.intr)
	s.intr = make(chan struct{})
	wasInitialized := s.initialized
	s.initialized = false
	s.nextStart = time.Time{}
	s.mu.Unlock()

	if !wasInitialized {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("sink: stop device: %w", err)
	}
	return nil
}

// SetGain updates the gain factor applied to chunks dequeued from now on.
func (s *Sink) SetGain(gain float64) {
	s.mu.Lock()
	s.gain = gain
	s.mu.Unlock()
}

// Gain returns the current gain factor.
func (s *Sink) Gain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// IsInitialized reports whether the sink currently holds the device.
func (s *Sink) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Queued returns the number of chunks awaiting playback.
func (s *Sink) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops playback and releases the device. The sink cannot be reused.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	s.gen++
	s.initialized = false
	s.mu.Unlock()

	close(s.closeCh)
	s.runOnce.Do(func() { close(s.done) })
	<-s.done

	return s.device.Close()
}

func (s *Sink) run() {
	defer close(s.done)

	for {
		chunk, gen, gain, intr, ok := s.dequeue()
		if !ok {
			return
		}
		if chunk == nil {
			// Queue empty; wait for more audio or shutdown.
			select {
			case <-s.wake:
				continue
			case <-s.closeCh:
				return
			}
		}

		startAt := s.schedule(gen, len(chunk))
		if startAt.IsZero() {
			continue // stopped while this chunk was in flight
		}

		if wait := startAt.Sub(s.clock.Now()); wait > 0 {
			select {
			case <-s.clock.After(wait):
			case <-intr:
				continue
			case <-s.closeCh:
				return
			}
		}

		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if stale {
			continue
		}

		ApplyGain(chunk, gain)
		if err := s.device.Write(chunk); err != nil {
			logger.Warn("playback write failed", "error", err)
		}
	}
}

// dequeue pops the next chunk. It returns a nil chunk when the queue is
// empty and ok=false when the sink is closed.
func (s *Sink) dequeue() (chunk []int16, gen int, gain float64, intr chan struct{}, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, 0, nil, false
	}
	if len(s.queue) == 0 {
		return nil, 0, 0, nil, true
	}
	chunk = s.queue[0]
	s.queue = s.queue[1:]
	return chunk, s.gen, s.gain, s.intr, true
}

// schedule claims the playback slot for a chunk of n samples and advances the
// monotonic next-start cursor. It returns a zero start time if the sink was
// stopped since the chunk was dequeued.
func (s *Sink) schedule(gen, n int) time.Time {
	duration := time.Duration(n) * time.Second / time.Duration(s.rate)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return time.Time{}
	}
	startAt := s.clock.Now()
	if s.nextStart.After(startAt) {
		startAt = s.nextStart
	}
	s.nextStart = startAt.Add(duration)
	return startAt
}
