// Package media prepares captured video frames for the wire: frames are
// downscaled to a target width and JPEG-encoded within a size budget.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	_ "image/png" // register PNG decoder for screenshot sources

	_ "golang.org/x/image/webp" // register WebP decoder
)

// MIMETypeJPEG is the MIME type of processed frames.
const MIMETypeJPEG = "image/jpeg"

// Default frame processing values.
const (
	DefaultTargetWidth = 640
	DefaultQuality     = 70
	MinQuality         = 10
	QualityDecay       = 0.9
)

// FrameConfig configures frame processing.
type FrameConfig struct {
	// TargetWidth is the output width in pixels. Frames narrower than this
	// pass through unscaled. Defaults to DefaultTargetWidth.
	TargetWidth int

	// Quality is the JPEG encoding quality (1-100). Defaults to
	// DefaultQuality.
	Quality int

	// MaxSizeBytes caps the encoded frame size (0 = no limit). If exceeded,
	// quality is reduced iteratively down to MinQuality.
	MaxSizeBytes int64
}

func (c *FrameConfig) defaults() {
	if c.TargetWidth <= 0 {
		c.TargetWidth = DefaultTargetWidth
	}
	if c.Quality <= 0 {
		c.Quality = DefaultQuality
	}
}

// Frame is one processed frame ready for the wire.
type Frame struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// ProcessFrame decodes a captured frame, downscales it to the target width
// preserving aspect ratio, and re-encodes it as JPEG.
func ProcessFrame(data []byte, cfg FrameConfig) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame data")
	}
	cfg.defaults()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()

	width, height := origWidth, origHeight
	if origWidth > cfg.TargetWidth {
		width = cfg.TargetWidth
		height = int(float64(origHeight) * float64(cfg.TargetWidth) / float64(origWidth))
		if height < 1 {
			height = 1
		}
		img = downscale(img, width, height)
	}

	encoded, err := encodeJPEG(img, cfg.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	if cfg.MaxSizeBytes > 0 && int64(len(encoded)) > cfg.MaxSizeBytes {
		encoded, err = reduceToFitSize(img, cfg.Quality, cfg.MaxSizeBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to reduce frame size: %w", err)
		}
	}

	return &Frame{
		Data:     encoded,
		MIMEType: MIMETypeJPEG,
		Width:    width,
		Height:   height,
	}, nil
}

// downscale scales src to the given dimensions using high-quality
// CatmullRom interpolation.
func downscale(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// reduceToFitSize iteratively lowers quality until the encoded frame fits
// within maxSize. At MinQuality the frame is returned even if still over.
func reduceToFitSize(img image.Image, startQuality int, maxSize int64) ([]byte, error) {
	quality := startQuality

	for quality >= MinQuality {
		encoded, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, err
		}
		if int64(len(encoded)) <= maxSize {
			return encoded, nil
		}
		quality = int(float64(quality) * QualityDecay)
	}

	return encodeJPEG(img, MinQuality)
}
