package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// newTestDB connects to OWL_TEST_MONGO_URI using a throwaway database.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	uri := os.Getenv("OWL_TEST_MONGO_URI")
	if uri == "" || testing.Short() {
		t.Skip("OWL_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, config.DatabaseConfig{
		MongoURI:       uri,
		MongoDatabase:  "owl_test_" + uuid.NewString()[:8],
		ConnectTimeout: 5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.db.Drop(context.Background())
		db.Close()
	})

	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestUserUniqueness(t *testing.T) {
	db := newTestDB(t)
	repo := db.Repositories().User
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.NewTelegramUser(42, "owl", "", "", "")))

	// Two email users without tg_id must not collide on the sparse index.
	require.NoError(t, repo.Create(ctx, domain.NewEmailUser(1000, "a@example.com", "", "h")))
	require.NoError(t, repo.Create(ctx, domain.NewEmailUser(1001, "b@example.com", "", "h")))

	err := repo.Create(ctx, domain.NewEmailUser(1002, "A@example.com", "", "h"))
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	got, err := repo.GetByEmail(ctx, "b@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1001), got.ID)

	lang := domain.LanguageRU
	ok, err := repo.Update(ctx, 42, domain.UserPatch{Language: &lang})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Update(ctx, 7, domain.UserPatch{Language: &lang})
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := repo.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestContainerFileLifecycle(t *testing.T) {
	db := newTestDB(t)
	repos := db.Repositories()
	ctx := context.Background()

	c := domain.NewContainer("c1", 1, domain.DefaultTariff())
	require.NoError(t, repos.Container.Create(ctx, c))
	assert.ErrorIs(t, repos.Container.Create(ctx, c), repository.ErrAlreadyExists)

	require.NoError(t, repos.File.Create(ctx, domain.NewFile("f1", "c1", 1, "a", 100, "")))
	require.NoError(t, repos.File.Create(ctx, domain.NewFile("f2", "c1", 1, "b", 24, "")))

	bytes, count, err := repos.File.UsageByContainer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(124), bytes)
	assert.Equal(t, int64(2), count)

	bytes, count, err = repos.File.UsageByContainer(ctx, "none")
	require.NoError(t, err)
	assert.Zero(t, bytes)
	assert.Zero(t, count)

	ok, err := repos.Container.SetStatus(ctx, "c1", domain.StatusActive)
	require.NoError(t, err)
	assert.True(t, ok)

	pending, err := repos.Container.ListPendingBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, pending)

	ok, err = repos.Container.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Container.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}
