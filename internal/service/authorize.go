package service

import (
	"strings"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// Authorize allows the owner of an entity and administrators.
func Authorize(caller *domain.User, ownerID int64) error {
	if caller == nil {
		return domain.ErrUnauthenticated
	}
	if !caller.CanAccess(ownerID) {
		return domain.ErrAccessDenied
	}
	return nil
}

// requireAdmin allows administrators only.
func requireAdmin(caller *domain.User) error {
	if caller == nil {
		return domain.ErrUnauthenticated
	}
	if !caller.IsAdmin {
		return domain.ErrAdminRequired
	}
	return nil
}

// Suggestion returns a short hint for the user based on the failure text,
// or an empty string when nothing useful can be said.
func Suggestion(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection") || strings.Contains(msg, "unavailable"):
		return "The storage service is unreachable. Check /health and try again later."
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "The request took too long. Try a smaller file or a shorter query."
	case strings.Contains(msg, "not found"):
		return "Check the identifier with /list or /containers."
	}
	return ""
}
