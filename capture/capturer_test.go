package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralis-ai/geminilive/media"
)

func jpegFrame(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// fakeSource serves frames from a queue; an empty queue reports the source
// as gone.
type fakeSource struct {
	mu       sync.Mutex
	frames   [][]byte
	loop     bool
	initErr  error
	disposed int
}

func (s *fakeSource) Initialize() error { return s.initErr }

func (s *fakeSource) Capture(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, ErrSourceUnavailable
	}
	frame := s.frames[0]
	if !s.loop {
		s.frames = s.frames[1:]
	}
	return frame, nil
}

func (s *fakeSource) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed++
	return nil
}

func (s *fakeSource) disposeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func TestCapturer_DeliversProcessedFrames(t *testing.T) {
	src := &fakeSource{frames: [][]byte{jpegFrame(t, 800, 600)}, loop: true}

	frames := make(chan *media.Frame, 10)
	c, err := NewCapturer(CapturerConfig{
		Source:  src,
		FPS:     100,
		Frame:   media.FrameConfig{TargetWidth: 400},
		OnFrame: func(f *media.Frame) { frames <- f },
	})
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	select {
	case f := <-frames:
		assert.Equal(t, 400, f.Width)
		assert.Equal(t, 300, f.Height)
		assert.Equal(t, media.MIMETypeJPEG, f.MIMEType)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestCapturer_SourceEndedExternally(t *testing.T) {
	// Two frames, then the source goes away mid-run.
	src := &fakeSource{frames: [][]byte{jpegFrame(t, 100, 100), jpegFrame(t, 100, 100)}}

	ended := make(chan error, 1)
	c, err := NewCapturer(CapturerConfig{
		Source:  src,
		FPS:     100,
		OnFrame: func(_ *media.Frame) {},
		OnEnded: func(err error) { ended <- err },
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	select {
	case err := <-ended:
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for capture to end")
	}

	assert.False(t, c.IsRunning())
	assert.Equal(t, 1, src.disposeCount())
}

func TestCapturer_StopIsClean(t *testing.T) {
	src := &fakeSource{frames: [][]byte{jpegFrame(t, 100, 100)}, loop: true}

	ended := make(chan error, 1)
	c, err := NewCapturer(CapturerConfig{
		Source:  src,
		FPS:     100,
		OnFrame: func(_ *media.Frame) {},
		OnEnded: func(err error) { ended <- err },
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	c.Stop()

	select {
	case err := <-ended:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stop notification")
	}

	assert.False(t, c.IsRunning())
	assert.Equal(t, 1, src.disposeCount())
}

func TestCapturer_StopWhenNotRunning(t *testing.T) {
	src := &fakeSource{}
	c, err := NewCapturer(CapturerConfig{
		Source:  src,
		FPS:     1,
		OnFrame: func(_ *media.Frame) {},
	})
	require.NoError(t, err)

	c.Stop()
	assert.Zero(t, src.disposeCount())
}

func TestCapturer_BadFrameIsDropped(t *testing.T) {
	src := &fakeSource{frames: [][]byte{
		[]byte("not an image"),
		jpegFrame(t, 100, 100),
	}}

	frames := make(chan *media.Frame, 10)
	c, err := NewCapturer(CapturerConfig{
		Source:  src,
		FPS:     100,
		OnFrame: func(f *media.Frame) { frames <- f },
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	select {
	case f := <-frames:
		assert.Equal(t, 100, f.Width)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for good frame after bad one")
	}
}

func TestCapturer_StartTwice(t *testing.T) {
	src := &fakeSource{frames: [][]byte{jpegFrame(t, 100, 100)}, loop: true}
	c, err := NewCapturer(CapturerConfig{
		Source:  src,
		FPS:     100,
		OnFrame: func(_ *media.Frame) {},
	})
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	assert.Error(t, c.Start(context.Background()))
}

func TestCapturer_InitializeFailure(t *testing.T) {
	src := &fakeSource{initErr: ErrSourceUnavailable}
	c, err := NewCapturer(CapturerConfig{
		Source:  src,
		FPS:     1,
		OnFrame: func(_ *media.Frame) {},
	})
	require.NoError(t, err)

	err = c.Start(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.False(t, c.IsRunning())
}

func TestNewCapturer_Validation(t *testing.T) {
	_, err := NewCapturer(CapturerConfig{FPS: 1, OnFrame: func(_ *media.Frame) {}})
	assert.Error(t, err)

	_, err = NewCapturer(CapturerConfig{Source: &fakeSource{}, OnFrame: func(_ *media.Frame) {}})
	assert.Error(t, err)

	_, err = NewCapturer(CapturerConfig{Source: &fakeSource{}, FPS: 1})
	assert.Error(t, err)
}
