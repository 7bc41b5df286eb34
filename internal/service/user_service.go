package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// UserService handles administrative user management (owl-admin).
type UserService struct {
	userRepo repository.UserRepository
	logger   zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, logger zerolog.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		logger:   logger.With().Str("service", "user").Logger(),
	}
}

// GetByID retrieves a user by ID.
func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// List returns all users ordered by id.
func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return users, nil
}

// SetActive sets the active status of a user.
func (s *UserService) SetActive(ctx context.Context, userID int64, isActive bool) error {
	if err := s.update(ctx, userID, domain.UserPatch{IsActive: &isActive}); err != nil {
		return err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Bool("is_active", isActive).
		Msg("user active status updated")

	return nil
}

// SetAdmin sets the admin status of a user.
func (s *UserService) SetAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	if err := s.update(ctx, userID, domain.UserPatch{IsAdmin: &isAdmin}); err != nil {
		return err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Bool("is_admin", isAdmin).
		Msg("user admin status updated")

	return nil
}

// SetLanguage records the interface language chosen by the user.
func (s *UserService) SetLanguage(ctx context.Context, userID int64, lang domain.Language) error {
	return s.update(ctx, userID, domain.UserPatch{Language: &lang})
}

func (s *UserService) update(ctx context.Context, userID int64, patch domain.UserPatch) error {
	ok, err := s.userRepo.Update(ctx, userID, patch)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to update user")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !ok {
		return domain.ErrUserNotFound
	}
	return nil
}
