package ledger

import "errors"

// Sentinel errors for the reward ledger.
var (
	ErrParse         = errors.New("malformed profile field")
	ErrInvalidConfig = errors.New("invalid ledger configuration")
	ErrClosed        = errors.New("ledger closed")
)
