package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/auralis-ai/geminilive/logger"
	"github.com/auralis-ai/geminilive/media"
)

// CapturerConfig configures a periodic Capturer.
type CapturerConfig struct {
	// Source produces raw frames. Required.
	Source FrameSource

	// FPS is the capture rate. Fractional rates are supported; 0.5 means
	// one frame every two seconds. Required.
	FPS float64

	// Frame holds downscale and encoding parameters.
	Frame media.FrameConfig

	// OnFrame receives each processed frame. Required.
	OnFrame func(frame *media.Frame)

	// OnEnded is invoked once when capture ends for any reason. The error
	// is nil for a requested stop and non-nil when the source went away on
	// its own. Optional.
	OnEnded func(err error)
}

// Capturer grabs frames from a source on a fixed cadence, processes them,
// and hands them to a callback. A source failure mid-run ends capture and
// reports through OnEnded, covering shares the user terminates from outside
// the session.
type Capturer struct {
	cfg      CapturerConfig
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCapturer creates a Capturer.
func NewCapturer(cfg CapturerConfig) (*Capturer, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("capturer: source is required")
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("capturer: fps must be positive, got %v", cfg.FPS)
	}
	if cfg.OnFrame == nil {
		return nil, fmt.Errorf("capturer: frame callback is required")
	}
	return &Capturer{
		cfg:      cfg,
		interval: time.Duration(float64(time.Second) / cfg.FPS),
	}, nil
}

// Start initializes the source and begins the capture loop. Starting an
// already running capturer is an error.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("capturer: already running")
	}
	c.running = true
	c.mu.Unlock()

	if err := c.cfg.Source.Initialize(); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("capturer: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(loopCtx, done)
	return nil
}

// Stop ends the capture loop and disposes the source. Safe to call when not
// running. OnEnded fires with a nil error.
func (c *Capturer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the capture loop is active.
func (c *Capturer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Capturer) run(ctx context.Context, done chan struct{}) {
	var endErr error
	defer func() {
		_ = c.cfg.Source.Dispose()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(done)
		if c.cfg.OnEnded != nil {
			c.cfg.OnEnded(endErr)
		}
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		raw, err := c.cfg.Source.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("frame source ended", "error", err)
			endErr = err
			return
		}

		frame, err := media.ProcessFrame(raw, c.cfg.Frame)
		if err != nil {
			// A bad frame is dropped; the source is still alive.
			logger.Warn("dropping unprocessable frame", "error", err)
			continue
		}

		c.cfg.OnFrame(frame)
	}
}
