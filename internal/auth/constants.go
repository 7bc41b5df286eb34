// Package auth provides bearer token authentication for the Owl HTTP gateway.
// Tokens are HS256 JWTs issued at login, registration or through the bot's /web command.
package auth

import "time"

// =============================================================================
// Constants
// =============================================================================

const (
	// SigningAlgorithm is the only accepted JWT algorithm.
	SigningAlgorithm = "HS256"

	// DefaultTokenExpiration is used when no expiration is configured.
	DefaultTokenExpiration = 24 * time.Hour

	// MinSecretLength is the minimum HS256 secret length in bytes.
	MinSecretLength = 32
)

// =============================================================================
// Request Constants
// =============================================================================

const (
	// AuthorizationHeader is the HTTP header for authorization.
	AuthorizationHeader = "Authorization"

	// BearerPrefix introduces a token in the Authorization header.
	BearerPrefix = "Bearer "

	// TokenQueryParam carries the token for links opened from the bot.
	TokenQueryParam = "token"
)
