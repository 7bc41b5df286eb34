package auth

import (
	"net/http"
	"strings"
)

// GetAuthType determines where a request carries its token.
// The Authorization header wins over the query parameter.
func GetAuthType(r *http.Request) AuthType {
	authHeader := r.Header.Get(AuthorizationHeader)

	if authHeader != "" {
		if len(authHeader) > len(BearerPrefix) && strings.EqualFold(authHeader[:len(BearerPrefix)], BearerPrefix) {
			return AuthTypeBearer
		}
		return AuthTypeUnknown
	}

	if r.URL.Query().Get(TokenQueryParam) != "" {
		return AuthTypeQuery
	}

	return AuthTypeAnonymous
}

// ExtractToken returns the raw token of a request and where it was found.
func ExtractToken(r *http.Request) (string, AuthType) {
	authType := GetAuthType(r)

	switch authType {
	case AuthTypeBearer:
		return strings.TrimSpace(r.Header.Get(AuthorizationHeader)[len(BearerPrefix):]), authType
	case AuthTypeQuery:
		return strings.TrimSpace(r.URL.Query().Get(TokenQueryParam)), authType
	}
	return "", authType
}
