package catalog

import "errors"

// Sentinel errors for catalog lookups and construction.
var (
	ErrUnknownAction  = errors.New("unknown action")
	ErrDuplicateEntry = errors.New("duplicate catalog entry")
	ErrInvalidEntry   = errors.New("invalid catalog entry")
)
