package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/ecoquest/internal/app"
	"github.com/okian/ecoquest/internal/domain/capture"
	"github.com/okian/ecoquest/internal/domain/catalog"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
	ErrUnprocessable = errors.New("unprocessable")
	ErrTooLarge      = errors.New("payload too large")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnavailable   = errors.New("unavailable")
	ErrInternal      = errors.New("internal error")
)

// KindError tags an operation failure with one of the sentinel kinds.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns a KindError without a cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// WrapKind returns a KindError wrapping err.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// classify maps session errors to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrUnknownAction):
		return http.StatusNotFound, "unknown_action"
	case errors.Is(err, capture.ErrInvalidLocation):
		return http.StatusForbidden, "invalid_location"
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, capture.ErrCaptureInProgress):
		return http.StatusConflict, "capture_in_progress"
	case errors.Is(err, capture.ErrCancelled):
		return http.StatusBadRequest, "cancelled"
	case errors.Is(err, capture.ErrDecode):
		return http.StatusUnprocessableEntity, "decode_error"
	case errors.Is(err, capture.ErrNoCamera), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func kindFor(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusUnprocessableEntity:
		return ErrUnprocessable
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		return ErrInternal
	}
}
