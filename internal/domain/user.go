// Package domain contains the core business entities for Owl Middleware.
// These are plain Go structs with no infrastructure dependencies.
package domain

import (
	"strings"
	"time"
)

// AuthMethod records how a user registered.
type AuthMethod string

const (
	// AuthMethodTelegram marks users created from a Telegram profile.
	AuthMethodTelegram AuthMethod = "telegram"

	// AuthMethodEmail marks users created through email registration.
	AuthMethodEmail AuthMethod = "email"
)

// Language is the user's interface language.
type Language string

const (
	LanguageEN Language = "en"
	LanguageRU Language = "ru"
)

// LanguageFromCode maps a Telegram language code onto a supported Language.
func LanguageFromCode(code string) Language {
	if strings.HasPrefix(strings.ToLower(code), "ru") {
		return LanguageRU
	}
	return LanguageEN
}

// User represents a registered user in the system.
// Users own containers; containers own files.
type User struct {
	// ID is the unique identifier for the user.
	// Telegram users reuse their Telegram id.
	ID int64 `json:"id"`

	// TelegramID is the Telegram user id, when the user came from the bot.
	TelegramID *int64 `json:"tg_id,omitempty"`

	// Email is the login email, when the user registered over HTTP.
	Email *string `json:"email,omitempty"`

	// Username is the optional Telegram or chosen username.
	Username string `json:"username,omitempty"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`

	// PasswordHash is the bcrypt hash of the user's password.
	// This should never be exposed in API responses.
	PasswordHash string `json:"-"`

	// IsActive indicates whether the user account is active.
	IsActive bool `json:"is_active"`

	// IsAdmin grants access to every container and to admin commands.
	IsAdmin bool `json:"is_admin"`

	Language     Language   `json:"lang"`
	RegisteredAt time.Time  `json:"registered_at"`
	AuthMethod   AuthMethod `json:"auth_method"`
}

// NewTelegramUser creates a user from a Telegram profile.
func NewTelegramUser(tgID int64, username, firstName, lastName string, lang Language) *User {
	if firstName == "" {
		firstName = "Unknown"
	}
	if lang == "" {
		lang = LanguageEN
	}
	id := tgID
	return &User{
		ID:           tgID,
		TelegramID:   &id,
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		IsActive:     true,
		Language:     lang,
		RegisteredAt: time.Now().UTC(),
		AuthMethod:   AuthMethodTelegram,
	}
}

// NewEmailUser creates an email-authenticated user.
func NewEmailUser(id int64, email, username, passwordHash string) *User {
	e := strings.ToLower(strings.TrimSpace(email))
	return &User{
		ID:           id,
		Email:        &e,
		Username:     username,
		FirstName:    "Unknown",
		PasswordHash: passwordHash,
		IsActive:     true,
		Language:     LanguageEN,
		RegisteredAt: time.Now().UTC(),
		AuthMethod:   AuthMethodEmail,
	}
}

// Validate checks the identity invariant.
func (u *User) Validate() error {
	if u.TelegramID == nil && (u.Email == nil || *u.Email == "") {
		return ErrUserIdentityMissing
	}
	return nil
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return u.IsActive
}

// CanAccess reports whether the user may operate on an entity owned by ownerID.
func (u *User) CanAccess(ownerID int64) bool {
	return u.ID == ownerID || u.IsAdmin
}

// DisplayName returns the best available human-readable name.
func (u *User) DisplayName() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.FirstName != "" && u.FirstName != "Unknown":
		return strings.TrimSpace(u.FirstName + " " + u.LastName)
	case u.Email != nil:
		return *u.Email
	}
	return "Unknown"
}

// UserPatch carries the mutable metadata fields of a user.
// Nil fields are left untouched.
type UserPatch struct {
	Username  *string
	FirstName *string
	LastName  *string
	IsActive  *bool
	IsAdmin   *bool
	Language  *Language
}
