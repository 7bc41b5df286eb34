// Package service provides the orchestration layer of Owl Middleware.
package service

import (
	"fmt"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// Common service errors.
var (
	// Registration errors
	ErrInvalidEmail    = fmt.Errorf("%w: invalid email format", domain.ErrValidation)
	ErrInvalidUsername = fmt.Errorf("%w: username must be at most 255 characters", domain.ErrValidation)

	// Remote errors
	ErrStorageCommunication = fmt.Errorf("%w: storage communication error", domain.ErrRemoteService)
	ErrOCRUnavailable       = fmt.Errorf("%w: ocr is not available", domain.ErrRemoteService)
	ErrChatUnavailable      = fmt.Errorf("%w: chat is not available", domain.ErrRemoteService)

	// General errors
	ErrInternalError = domain.ErrInternal
)
