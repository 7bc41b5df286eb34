package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// TokenIssuer issues and verifies HS256 session tokens.
type TokenIssuer struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates a token issuer.
func NewTokenIssuer(secret string, expiration time.Duration) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
	}
	if expiration <= 0 {
		expiration = DefaultTokenExpiration
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		expiration: expiration,
		now:        time.Now,
	}, nil
}

// Expiration returns the lifetime of issued tokens.
func (i *TokenIssuer) Expiration() time.Duration {
	return i.expiration
}

// Issue signs a token for user.
func (i *TokenIssuer) Issue(user *domain.User) (string, error) {
	now := i.now()
	claims := Claims{
		UserID:     user.ID,
		AuthMethod: user.AuthMethod,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiration)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sign token: %v", domain.ErrInternal, err)
	}
	return token, nil
}

// Verify checks the signature and expiry of token and returns its claims.
// The error is ErrTokenExpired or ErrTokenInvalid.
func (i *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if !parsed.Valid || claims.UserID <= 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
