package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"io"
	"os"

	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/webp" // register WebP

	"github.com/okian/ecoquest/internal/domain/capture"
)

// Default decoder bounds.
const (
	defaultMaxDimension = 8192
)

// Decoder validates pictures by fully decoding them.
type Decoder struct {
	maxDimension int
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxDimension bounds width and height in pixels.
func WithMaxDimension(px int) DecoderOption {
	return func(d *Decoder) {
		if px > 0 {
			d.maxDimension = px
		}
	}
}

// NewDecoder creates a decoder for PNG, JPEG, GIF, BMP and WebP.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{maxDimension: defaultMaxDimension}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode implements capture.Decoder.
func (d *Decoder) Decode(ctx context.Context, path string) (capture.Image, error) {
	if err := ctx.Err(); err != nil {
		return capture.Image{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return capture.Image{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return capture.Image{}, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
		}
		return capture.Image{}, fmt.Errorf("read header of %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return capture.Image{}, fmt.Errorf("%s: %w", path, ErrEmptyImage)
	}
	if cfg.Width > d.maxDimension || cfg.Height > d.maxDimension {
		return capture.Image{}, fmt.Errorf("%s is %dx%d: %w", path, cfg.Width, cfg.Height, ErrImageTooLarge)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return capture.Image{}, fmt.Errorf("rewind %s: %w", path, err)
	}
	if _, _, err := image.Decode(f); err != nil {
		return capture.Image{}, fmt.Errorf("decode %s: %w", path, err)
	}

	return capture.Image{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
