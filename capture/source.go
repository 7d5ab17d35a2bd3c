// Package capture grabs video frames from a camera or the screen and sends
// them to the session at a fixed cadence.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

// ErrSourceUnavailable indicates a frame source could not be acquired or has
// gone away, for example when a shared screen's backing display ends.
var ErrSourceUnavailable = errors.New("capture: source unavailable")

// FrameSource produces raw encoded frames (JPEG or PNG) from a device.
// Camera and screen sources satisfy the same interface so the capturer does
// not care which it drives.
type FrameSource interface {
	// Initialize acquires the source.
	Initialize() error

	// Capture grabs one frame. An error after successful initialization
	// means the source has gone away.
	Capture(ctx context.Context) ([]byte, error)

	// Dispose releases the source. Safe to call more than once.
	Dispose() error
}

// ffmpegSource shells out to ffmpeg for one frame per capture. Both camera
// and screen grabbing reduce to an input format and device string.
type ffmpegSource struct {
	inputFormat string
	device      string
	extraArgs   []string
	initialized bool
}

// NewCameraSource returns a FrameSource reading from a camera device, for
// example /dev/video0 on Linux. An empty device selects the platform default.
func NewCameraSource(device string) FrameSource {
	format, fallback := cameraInput()
	if device == "" {
		device = fallback
	}
	return &ffmpegSource{inputFormat: format, device: device}
}

// NewScreenSource returns a FrameSource grabbing the display, for example
// :0.0 on X11. An empty display selects the platform default.
func NewScreenSource(display string) FrameSource {
	format, fallback := screenInput()
	if display == "" {
		display = fallback
	}
	return &ffmpegSource{inputFormat: format, device: display}
}

func cameraInput() (format, defaultDevice string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", "0"
	case "windows":
		return "dshow", "video=Integrated Camera"
	default:
		return "v4l2", "/dev/video0"
	}
}

func screenInput() (format, defaultDevice string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", "1"
	case "windows":
		return "gdigrab", "desktop"
	default:
		return "x11grab", ":0.0"
	}
}

func (s *ffmpegSource) Initialize() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: ffmpeg not found in PATH", ErrSourceUnavailable)
	}
	s.initialized = true
	return nil
}

func (s *ffmpegSource) Capture(ctx context.Context) ([]byte, error) {
	if !s.initialized {
		return nil, fmt.Errorf("%w: not initialized", ErrSourceUnavailable)
	}

	args := []string{
		"-loglevel", "error",
		"-f", s.inputFormat,
		"-i", s.device,
	}
	args = append(args, s.extraArgs...)
	args = append(args,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrSourceUnavailable, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no frame", ErrSourceUnavailable)
	}
	return stdout.Bytes(), nil
}

func (s *ffmpegSource) Dispose() error {
	s.initialized = false
	return nil
}
