package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

func TestUserService_AdminFlags(t *testing.T) {
	repo := NewMockUserRepository()
	repo.users[7] = testUser(7)
	svc := NewUserService(repo, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, svc.SetAdmin(ctx, 7, true))
	require.NoError(t, svc.SetActive(ctx, 7, false))
	require.NoError(t, svc.SetLanguage(ctx, 7, domain.LanguageRU))

	user, err := svc.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
	assert.False(t, user.IsActive)
	assert.Equal(t, domain.LanguageRU, user.Language)
}

func TestUserService_UnknownUser(t *testing.T) {
	svc := NewUserService(NewMockUserRepository(), zerolog.Nop())
	ctx := context.Background()

	_, err := svc.GetByID(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	assert.ErrorIs(t, svc.SetAdmin(ctx, 42, true), domain.ErrUserNotFound)
}

func TestUserService_ListOrdered(t *testing.T) {
	repo := NewMockUserRepository()
	repo.users[3] = testUser(3)
	repo.users[1] = testUser(1)
	svc := NewUserService(repo, zerolog.Nop())

	users, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(1), users[0].ID)
	assert.Equal(t, int64(3), users[1].ID)
}

func TestUserService_RepositoryFailure(t *testing.T) {
	repo := NewMockUserRepository()
	repo.getErr = errors.New("connection reset")
	svc := NewUserService(repo, zerolog.Nop())

	_, err := svc.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInternalError)
}
