// Package domain contains the core business entities for Owl Middleware.
package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the orchestration layer matches
// exactly one of these via errors.Is; the transport layers map them onto
// HTTP statuses and bot replies.

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity with the same natural key exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed or out-of-range caller input.
	ErrValidation = errors.New("invalid input")

	// ErrUnauthenticated indicates a missing, invalid or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden indicates the caller is not allowed to touch the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrRemoteService indicates the backend or a third-party API failed.
	ErrRemoteService = errors.New("remote service error")

	// ErrInternal indicates an unexpected defect.
	ErrInternal = errors.New("internal error")
)

var (
	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = newClassError(ErrNotFound, "user not found")

	// ErrUserAlreadyExists indicates a user with the same id, telegram id or email exists.
	ErrUserAlreadyExists = newClassError(ErrAlreadyExists, "user already exists")

	// ErrUserInactive indicates the user account is disabled.
	ErrUserInactive = newClassError(ErrForbidden, "user account is inactive")

	// ErrInvalidCredentials indicates email/password authentication failed.
	ErrInvalidCredentials = newClassError(ErrUnauthenticated, "invalid credentials")

	// ErrUserIdentityMissing indicates neither a telegram id nor an email is set.
	ErrUserIdentityMissing = newClassError(ErrValidation, "user must have a telegram id or an email")

	// ===========================================
	// Container Errors
	// ===========================================

	// ErrContainerNotFound indicates the requested container does not exist.
	ErrContainerNotFound = newClassError(ErrNotFound, "container not found")

	// ErrContainerAlreadyExists indicates a container with the same id exists.
	ErrContainerAlreadyExists = newClassError(ErrAlreadyExists, "container already exists")

	// ErrContainerIDFormat indicates the container id is empty or malformed.
	ErrContainerIDFormat = newClassError(ErrValidation, "container id must be 1-64 characters of letters, digits, '_', '-' or '.'")

	// ErrTariffNotPositive indicates a tariff limit is zero or negative.
	ErrTariffNotPositive = newClassError(ErrValidation, "all limits must be positive numbers")

	// ErrMemoryLimitTooHigh indicates the memory limit exceeds MaxMemoryLimitMB.
	ErrMemoryLimitTooHigh = newClassError(ErrValidation, fmt.Sprintf("memory limit cannot exceed %d MB", MaxMemoryLimitMB))

	// ErrStorageQuotaTooHigh indicates the storage quota exceeds MaxStorageQuotaMB.
	ErrStorageQuotaTooHigh = newClassError(ErrValidation, fmt.Sprintf("storage quota cannot exceed %d MB", MaxStorageQuotaMB))

	// ===========================================
	// File Errors
	// ===========================================

	// ErrFileNotFound indicates the requested file does not exist.
	ErrFileNotFound = newClassError(ErrNotFound, "file not found")

	// ErrFileAlreadyExists indicates a file with the same id exists.
	ErrFileAlreadyExists = newClassError(ErrAlreadyExists, "file already exists")

	// ErrFileTooLarge indicates the document exceeds the configured maximum size.
	ErrFileTooLarge = newClassError(ErrValidation, "file is too large")

	// ErrEmptyFile indicates an upload without content.
	ErrEmptyFile = newClassError(ErrValidation, "file is empty")

	// ErrStorageQuotaExceeded indicates the upload would exceed the container quota.
	ErrStorageQuotaExceeded = newClassError(ErrValidation, "storage quota exceeded")

	// ErrFileLimitExceeded indicates the container already holds its maximum file count.
	ErrFileLimitExceeded = newClassError(ErrValidation, "file limit exceeded")

	// ===========================================
	// Search / Chat / OCR Errors
	// ===========================================

	// ErrEmptyQuery indicates a search or chat request without a query.
	ErrEmptyQuery = newClassError(ErrValidation, "query must not be empty")

	// ErrEmptyImage indicates an OCR request without image data.
	ErrEmptyImage = newClassError(ErrValidation, "image must not be empty")

	// ErrNoContainers indicates the caller has no container to work in.
	ErrNoContainers = newClassError(ErrNotFound, "no containers, create one first")

	// ErrSearchExpired indicates a result button outlived its search session.
	ErrSearchExpired = newClassError(ErrNotFound, "search results expired, run /search again")

	// ErrWebNotConfigured indicates /web was used without a web app address.
	ErrWebNotConfigured = newClassError(ErrNotFound, "web access is not configured")

	// ===========================================
	// Authentication/Authorization Errors
	// ===========================================

	// ErrAccessDenied indicates the caller does not own the target entity.
	ErrAccessDenied = newClassError(ErrForbidden, "access denied")

	// ErrAdminRequired indicates the operation is restricted to administrators.
	ErrAdminRequired = newClassError(ErrForbidden, "insufficient permissions")
)

// classError is a named error that also matches its class sentinel.
type classError struct {
	class error
	msg   string
}

func newClassError(class error, msg string) error {
	return &classError{class: class, msg: msg}
}

func (e *classError) Error() string { return e.msg }

// Is reports whether target is the error's class.
func (e *classError) Is(target error) bool {
	return target == e.class
}

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (container id, file id).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	switch {
	case e.Message != "" && e.Resource != "":
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	case e.Resource != "":
		return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Resource)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// Validationf builds a validation-class error with a formatted message.
func Validationf(format string, args ...any) error {
	return &DomainError{Err: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// Class returns the class sentinel err belongs to, or ErrInternal.
func Class(err error) error {
	for _, class := range []error{
		ErrNotFound, ErrAlreadyExists, ErrValidation,
		ErrUnauthenticated, ErrForbidden, ErrRemoteService, ErrInternal,
	} {
		if errors.Is(err, class) {
			return class
		}
	}
	return ErrInternal
}

// Message returns a user-facing message for err. Bare validation errors built
// by Validationf lose their "invalid input: " prefix.
func Message(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Err == ErrValidation && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
