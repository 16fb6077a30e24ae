package service

import "errors"

// Sentinel errors for the session.
var (
	ErrNotStarted = errors.New("session not started")
	ErrNoCatalog  = errors.New("session has no catalog")
)
