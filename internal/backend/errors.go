package backend

import (
	"errors"
	"fmt"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// Outcome sentinels. Each one also matches the domain class it maps onto,
// so callers can test either errors.Is(err, backend.ErrNotFound) or
// errors.Is(err, domain.ErrNotFound).
var (
	// ErrNotFound is returned for HTTP 404.
	ErrNotFound = fmt.Errorf("remote resource %w", domain.ErrNotFound)

	// ErrPermission is returned for HTTP 401 and 403.
	ErrPermission = fmt.Errorf("remote permission denied: %w", domain.ErrForbidden)

	// ErrValidation is returned for HTTP 400.
	ErrValidation = fmt.Errorf("remote rejected request: %w", domain.ErrValidation)

	// ErrPayloadTooLarge is returned for HTTP 413.
	ErrPayloadTooLarge = fmt.Errorf("payload too large: %w", domain.ErrValidation)

	// ErrService is returned for every other non-success status.
	ErrService = fmt.Errorf("storage service error: %w", domain.ErrRemoteService)

	// ErrUnavailable is returned when the request never got a response.
	ErrUnavailable = fmt.Errorf("storage service unavailable: %w", domain.ErrRemoteService)

	// ErrDecode is returned when a success response cannot be decoded.
	ErrDecode = fmt.Errorf("malformed backend response: %w", domain.ErrInternal)
)

// Error describes a failed backend call.
type Error struct {
	// Op is the operation name, e.g. "create_file".
	Op string

	// StatusCode is the HTTP status, zero when no response arrived.
	StatusCode int

	// Message is the body's error field, "HTTP error <code>", or the transport error.
	Message string

	// Err is one of the outcome sentinels.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Op, e.Message)
}

// Unwrap returns the outcome sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

// sentinelFor maps an HTTP status onto an outcome sentinel.
func sentinelFor(status int) error {
	switch status {
	case 400:
		return ErrValidation
	case 401, 403:
		return ErrPermission
	case 404:
		return ErrNotFound
	case 413:
		return ErrPayloadTooLarge
	}
	return ErrService
}

// StatusCode returns the HTTP status carried by err, or zero.
func StatusCode(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.StatusCode
	}
	return 0
}
