package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// Authentication errors. All of them are domain.ErrUnauthenticated except
// ErrUserInactive, which is domain.ErrForbidden.
var (
	// ErrMissingToken indicates the request carried no token.
	ErrMissingToken = fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)

	// ErrInvalidAuthorizationHeader indicates an Authorization header without the Bearer scheme.
	ErrInvalidAuthorizationHeader = fmt.Errorf("%w: invalid authorization header", domain.ErrUnauthenticated)

	// ErrTokenInvalid indicates a malformed token or a bad signature.
	ErrTokenInvalid = fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)

	// ErrTokenExpired indicates the token's exp claim is in the past.
	ErrTokenExpired = fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)

	// ErrUnknownUser indicates the token names a user that no longer exists.
	ErrUnknownUser = fmt.Errorf("%w: user not found", domain.ErrUnauthenticated)

	// ErrUserInactive indicates the token's user is disabled.
	ErrUserInactive = domain.ErrUserInactive
)

// ErrorCode identifies an authentication failure in logs.
type ErrorCode string

const (
	CodeMissingToken    ErrorCode = "MissingToken"
	CodeMalformedHeader ErrorCode = "AuthorizationHeaderMalformed"
	CodeInvalidToken    ErrorCode = "InvalidToken"
	CodeExpiredToken    ErrorCode = "ExpiredToken"
	CodeUnknownUser     ErrorCode = "UnknownUser"
	CodeUserInactive    ErrorCode = "UserInactive"
	CodeInternal        ErrorCode = "InternalError"
)

// AuthError is an authentication failure ready to be written as a response.
// Expired and invalid tokens share one public message; only Code tells them apart.
type AuthError struct {
	// Code identifies the failure.
	Code ErrorCode

	// Message is the client-facing message.
	Message string

	// HTTPStatus is the HTTP status code.
	HTTPStatus int
}

func (e *AuthError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewAuthError creates a new AuthError from a standard error.
func NewAuthError(err error) *AuthError {
	switch {
	case errors.Is(err, ErrMissingToken):
		return &AuthError{
			Code:       CodeMissingToken,
			Message:    "authentication required",
			HTTPStatus: http.StatusUnauthorized,
		}

	case errors.Is(err, ErrInvalidAuthorizationHeader):
		return &AuthError{
			Code:       CodeMalformedHeader,
			Message:    "authorization header must use the Bearer scheme",
			HTTPStatus: http.StatusUnauthorized,
		}

	case errors.Is(err, ErrTokenExpired):
		return &AuthError{
			Code:       CodeExpiredToken,
			Message:    "invalid or expired token",
			HTTPStatus: http.StatusUnauthorized,
		}

	case errors.Is(err, ErrTokenInvalid):
		return &AuthError{
			Code:       CodeInvalidToken,
			Message:    "invalid or expired token",
			HTTPStatus: http.StatusUnauthorized,
		}

	case errors.Is(err, ErrUnknownUser):
		return &AuthError{
			Code:       CodeUnknownUser,
			Message:    "user not found",
			HTTPStatus: http.StatusUnauthorized,
		}

	case errors.Is(err, ErrUserInactive):
		return &AuthError{
			Code:       CodeUserInactive,
			Message:    ErrUserInactive.Error(),
			HTTPStatus: http.StatusForbidden,
		}

	default:
		return &AuthError{
			Code:       CodeInternal,
			Message:    "internal server error",
			HTTPStatus: http.StatusInternalServerError,
		}
	}
}
