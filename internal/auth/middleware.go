package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// UserStore defines the interface for loading the token's user.
type UserStore interface {
	// GetByID returns (nil, nil) when the user does not exist.
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Config contains configuration for the auth middleware.
type Config struct {
	// SkipPaths are paths that skip authentication.
	SkipPaths []string

	// Logger receives authentication failures. Nil means the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default auth configuration.
func DefaultConfig() Config {
	return Config{
		SkipPaths: []string{"/health", "/metrics"},
	}
}

// Middleware creates an authentication middleware.
// The user store is only consulted once a token has been verified.
func Middleware(store UserStore, tokens *TokenIssuer, config Config) func(http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = &log.Logger
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check if path should skip authentication
			for _, path := range config.SkipPaths {
				if r.URL.Path == path {
					next.ServeHTTP(w, r)
					return
				}
			}

			token, authType := ExtractToken(r)

			switch authType {
			case AuthTypeAnonymous:
				writeAuthError(w, ErrMissingToken)
				return

			case AuthTypeBearer, AuthTypeQuery:
				authCtx, err := authenticate(r.Context(), token, store, tokens)
				if err != nil {
					authErr := NewAuthError(err)
					event := logger.Debug()
					if authErr.Code == CodeInternal {
						event = logger.Error()
					}
					event.
						Err(err).
						Str("path", r.URL.Path).
						Str("auth_type", authType.String()).
						Str("code", string(authErr.Code)).
						Msg("token authentication failed")
					writeAuthError(w, err)
					return
				}
				authCtx.AuthType = authType
				r = r.WithContext(NewContext(r.Context(), authCtx))

			default:
				writeAuthError(w, ErrInvalidAuthorizationHeader)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// authenticate verifies token and loads its user.
func authenticate(ctx context.Context, token string, store UserStore, tokens *TokenIssuer) (*AuthContext, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := store.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}
	if !user.CanAuthenticate() {
		return nil, ErrUserInactive
	}

	return &AuthContext{User: user, Claims: claims}, nil
}

// writeAuthError writes a JSON error response.
func writeAuthError(w http.ResponseWriter, err error) {
	authErr := NewAuthError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(authErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": authErr.Message})
}

// NewContext returns a copy of ctx carrying authCtx.
func NewContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, authCtx)
}

// GetAuthContext retrieves the AuthContext from a request context.
func GetAuthContext(ctx context.Context) *AuthContext {
	if authCtx, ok := ctx.Value(AuthContextKey).(*AuthContext); ok {
		return authCtx
	}
	return nil
}

// UserFromContext returns the authenticated user.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	authCtx := GetAuthContext(ctx)
	if authCtx == nil || authCtx.User == nil {
		return nil, false
	}
	return authCtx.User, true
}

// RequireUser is a helper to get the authenticated user or return an error.
func RequireUser(ctx context.Context) (*domain.User, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, ErrMissingToken
	}
	return user, nil
}
