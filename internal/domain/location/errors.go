package location

import "errors"

// Sentinel errors for the location gate.
var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrServiceTimeout   = errors.New("location fix not acquired in time")
	ErrServiceFailed    = errors.New("location service failed")
	ErrNoProvider       = errors.New("no location provider")
	ErrNotStarted       = errors.New("location gate not started")
	ErrStopped          = errors.New("location gate stopped")
)
