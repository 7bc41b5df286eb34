package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// =============================================================================
// Token Types
// =============================================================================

// Claims are the JWT claims of a session token.
// iat and exp come from the embedded registered claims.
type Claims struct {
	UserID     int64             `json:"user_id"`
	AuthMethod domain.AuthMethod `json:"auth_method"`
	jwt.RegisteredClaims
}

// AuthType represents where a request carried its token.
type AuthType int

const (
	// AuthTypeUnknown indicates an Authorization header that is not a bearer token.
	AuthTypeUnknown AuthType = iota

	// AuthTypeAnonymous indicates no token at all.
	AuthTypeAnonymous

	// AuthTypeBearer indicates a token in the Authorization header.
	AuthTypeBearer

	// AuthTypeQuery indicates a token in the ?token= query parameter.
	AuthTypeQuery
)

// String returns the string representation of the auth type.
func (at AuthType) String() string {
	switch at {
	case AuthTypeAnonymous:
		return "Anonymous"
	case AuthTypeBearer:
		return "Bearer"
	case AuthTypeQuery:
		return "Query"
	default:
		return "Unknown"
	}
}

// =============================================================================
// Context Types
// =============================================================================

// AuthContext contains authentication information attached to a request.
// This is set by the auth middleware after successful authentication.
type AuthContext struct {
	// User is the authenticated user, loaded from the metadata store.
	User *domain.User

	// Claims are the verified token claims.
	Claims *Claims

	// AuthType is where the token was found.
	AuthType AuthType
}

// authContextKey is the context key for AuthContext.
type authContextKey struct{}

// AuthContextKey is the key used to store AuthContext in request context.
var AuthContextKey = authContextKey{}
