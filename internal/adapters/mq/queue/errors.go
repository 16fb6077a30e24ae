package queue

import "errors"

// Sentinel errors for the sync queue.
var (
	ErrClosed = errors.New("sync queue closed")
	ErrFull   = errors.New("sync queue full")
)
