package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/owl-middleware/internal/auth"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

const (
	defaultMinPasswordLength = 8
	maxUsernameLength        = 255

	// emailIDAttempts bounds retries when a generated id collides.
	emailIDAttempts = 3
)

// AuthService resolves and registers users for both surfaces.
type AuthService struct {
	userRepo       repository.UserRepository
	tokens         *auth.TokenIssuer
	minPasswordLen int
	logger         zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repository.UserRepository, tokens *auth.TokenIssuer, minPasswordLen int, logger zerolog.Logger) *AuthService {
	if minPasswordLen <= 0 {
		minPasswordLen = defaultMinPasswordLength
	}
	return &AuthService{
		userRepo:       userRepo,
		tokens:         tokens,
		minPasswordLen: minPasswordLen,
		logger:         logger.With().Str("service", "auth").Logger(),
	}
}

// =============================================================================
// Input/Output Types
// =============================================================================

// TelegramProfile is the sender of a bot update.
type TelegramProfile struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// RegisterEmailInput contains the data needed to register over HTTP.
type RegisterEmailInput struct {
	Email    string
	Password string
	Username string
}

// SessionOutput is a user together with a fresh session token.
type SessionOutput struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// =============================================================================
// Messaging Path
// =============================================================================

// ResolveTelegramUser returns the user behind a bot update, registering it
// from the profile on first contact. Fails only on store errors.
func (s *AuthService) ResolveTelegramUser(ctx context.Context, profile TelegramProfile) (*domain.User, error) {
	user, err := s.userRepo.GetByTelegramID(ctx, profile.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("tg_id", profile.ID).Msg("failed to look up telegram user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if user != nil {
		return user, nil
	}

	user, err = s.createTelegramUser(ctx, profile)
	if errors.Is(err, domain.ErrUserAlreadyExists) {
		return s.reloadTelegramUser(ctx, profile.ID)
	}
	return user, err
}

// RegisterTelegram is the explicit /register command.
func (s *AuthService) RegisterTelegram(ctx context.Context, profile TelegramProfile) (*domain.User, error) {
	existing, err := s.userRepo.GetByTelegramID(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if existing != nil {
		return existing, domain.ErrUserAlreadyExists
	}

	user, err := s.createTelegramUser(ctx, profile)
	if errors.Is(err, domain.ErrUserAlreadyExists) {
		existing, err = s.reloadTelegramUser(ctx, profile.ID)
		if err != nil {
			return nil, err
		}
		return existing, domain.ErrUserAlreadyExists
	}
	return user, err
}

// reloadTelegramUser reads the user a concurrent registration just created.
func (s *AuthService) reloadTelegramUser(ctx context.Context, tgID int64) (*domain.User, error) {
	user, err := s.userRepo.GetByTelegramID(ctx, tgID)
	if err != nil || user == nil {
		return nil, fmt.Errorf("%w: user vanished after concurrent registration", ErrInternalError)
	}
	return user, nil
}

func (s *AuthService) createTelegramUser(ctx context.Context, profile TelegramProfile) (*domain.User, error) {
	user := domain.NewTelegramUser(
		profile.ID,
		profile.Username,
		profile.FirstName,
		profile.LastName,
		domain.LanguageFromCode(profile.LanguageCode),
	)

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, domain.ErrUserAlreadyExists
		}
		s.logger.Error().Err(err).Int64("tg_id", profile.ID).Msg("failed to register telegram user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Str("lang", string(user.Language)).
		Msg("telegram user registered")

	return user, nil
}

// =============================================================================
// Email Path
// =============================================================================

// RegisterEmail creates an email user and returns it with a token.
func (s *AuthService) RegisterEmail(ctx context.Context, input RegisterEmailInput) (*SessionOutput, error) {
	if err := s.validateRegisterInput(input); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.GetByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check email existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if existing != nil {
		return nil, domain.NewDomainError(domain.ErrUserAlreadyExists, "", normalizeEmail(input.Email))
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}

	var user *domain.User
	for attempt := 0; ; attempt++ {
		user = domain.NewEmailUser(generateUserID(), input.Email, input.Username, string(passwordHash))
		err = s.userRepo.Create(ctx, user)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrAlreadyExists) || attempt+1 >= emailIDAttempts {
			if errors.Is(err, repository.ErrAlreadyExists) {
				return nil, domain.ErrUserAlreadyExists
			}
			s.logger.Error().Err(err).Msg("failed to create email user")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("email", *user.Email).
		Msg("email user registered")

	return s.session(user)
}

// Login verifies email credentials and returns the user with a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*SessionOutput, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to look up user during login")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if user == nil {
		// Don't expose whether the email exists
		s.logger.Debug().Msg("unknown email during login")
		return nil, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug().Int64("user_id", user.ID).Msg("invalid password during login")
		return nil, domain.ErrInvalidCredentials
	}

	if !user.CanAuthenticate() {
		s.logger.Debug().Int64("user_id", user.ID).Msg("inactive user attempted login")
		return nil, domain.ErrUserInactive
	}

	s.logger.Info().Int64("user_id", user.ID).Msg("user logged in")
	return s.session(user)
}

// IssueToken returns a session token for an already resolved user (bot /web).
func (s *AuthService) IssueToken(user *domain.User) (string, error) {
	if !user.CanAuthenticate() {
		return "", domain.ErrUserInactive
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return token, nil
}

// Me returns the caller as stored.
func (s *AuthService) Me(ctx context.Context, caller *domain.User) (*domain.User, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	user, err := s.userRepo.GetByID(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *AuthService) session(user *domain.User) (*SessionOutput, error) {
	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{User: user, Token: token}, nil
}

// validateRegisterInput validates the input for email registration.
func (s *AuthService) validateRegisterInput(input RegisterEmailInput) error {
	if len(input.Username) > maxUsernameLength {
		return ErrInvalidUsername
	}

	addr, err := mail.ParseAddress(input.Email)
	if err != nil || addr.Address != strings.TrimSpace(input.Email) {
		return ErrInvalidEmail
	}

	if len(input.Password) < s.minPasswordLen {
		return domain.Validationf("password must be at least %d characters", s.minPasswordLen)
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateUserID derives a positive id from a random uuid. The top bits are
// set so generated ids never overlap the Telegram id range.
func generateUserID() int64 {
	u := uuid.New()
	v := binary.BigEndian.Uint64(u[:8])
	return int64(v>>2 | 1<<61)
}
