package capture

import "errors"

// Sentinel errors for a capture attempt.
var (
	ErrInvalidLocation   = errors.New("invalid location for this action")
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrCancelled         = errors.New("capture cancelled")
	ErrDecode            = errors.New("image could not be decoded")
	ErrPersist           = errors.New("photo could not be stored")
	ErrCaptureInProgress = errors.New("capture already in progress for this action")
	ErrNoCamera          = errors.New("no camera available")
)
