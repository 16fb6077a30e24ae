package device

import "errors"

var (
	// ErrUnsupportedFormat is returned for images no registered decoder understands.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrImageTooLarge is returned when an image exceeds the decoder's bounds.
	ErrImageTooLarge = errors.New("image too large")
	// ErrEmptyImage is returned for zero-sized images.
	ErrEmptyImage = errors.New("empty image")
)
