package postgres

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// newTestDB connects to the database named by OWL_TEST_POSTGRES_HOST and friends.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("OWL_TEST_POSTGRES_HOST")
	if host == "" || testing.Short() {
		t.Skip("OWL_TEST_POSTGRES_HOST not set")
	}

	port, _ := strconv.Atoi(os.Getenv("OWL_TEST_POSTGRES_PORT"))
	if port == 0 {
		port = 5432
	}

	cfg := config.DatabaseConfig{
		Driver:   "postgres",
		Host:     host,
		Port:     port,
		User:     os.Getenv("OWL_TEST_POSTGRES_USER"),
		Password: os.Getenv("OWL_TEST_POSTGRES_PASSWORD"),
		Database: os.Getenv("OWL_TEST_POSTGRES_DB"),
		SSLMode:  "disable",
	}

	ctx := context.Background()
	db, err := NewDB(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE files, containers, users`)
	require.NoError(t, err)

	return db
}

func TestRepositoryContract(t *testing.T) {
	db := newTestDB(t)
	repos := db.Repositories()
	ctx := context.Background()

	user := domain.NewTelegramUser(42, "owl", "", "", "")
	require.NoError(t, repos.User.Create(ctx, user))
	assert.ErrorIs(t, repos.User.Create(ctx, user), repository.ErrAlreadyExists)

	got, err := repos.User.GetByTelegramID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Email)

	none, err := repos.User.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, none)

	c := domain.NewContainer("c1", 42, domain.DefaultTariff())
	require.NoError(t, repos.Container.Create(ctx, c))
	assert.ErrorIs(t, repos.Container.Create(ctx, c), repository.ErrAlreadyExists)

	stored, err := repos.Container.GetByID(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, c.Commands, stored.Commands)

	f := domain.NewFile("f1", "c1", 42, "a.txt", 10, "text/plain")
	require.NoError(t, repos.File.Create(ctx, f))

	bytes, count, err := repos.File.UsageByContainer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bytes)
	assert.Equal(t, int64(1), count)

	pending, err := repos.File.ListPendingBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	ok, err := repos.File.Delete(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Container.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Container.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}
