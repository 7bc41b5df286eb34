package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/owl-middleware/internal/repository"
)

func TestCacheGetSet(t *testing.T) {
	c := NewCache(time.Hour)
	defer c.Stop()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	value := []byte("state")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "state", string(got))

	got[0] = 'Y'
	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "state", string(again))

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
	require.NoError(t, c.Delete(ctx, "k"))
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Hour)
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "kept", []byte("v"), 0))
	require.NoError(t, c.Set(ctx, "gone", []byte("v"), time.Nanosecond))
	time.Sleep(time.Millisecond)
	c.sweep()
	assert.Len(t, c.entries, 1)
	assert.Contains(t, c.entries, "kept")
}

func TestCacheKeys(t *testing.T) {
	c := NewCache(time.Hour)
	defer c.Stop()
	ctx := context.Background()

	key := repository.CacheKey{}
	require.NoError(t, c.Set(ctx, key.UserState(2), []byte("{}"), 0))
	require.NoError(t, c.Set(ctx, key.UserState(1), []byte("{}"), 0))
	require.NoError(t, c.Set(ctx, "other", []byte("{}"), 0))

	keys, err := c.Keys(ctx, repository.UserStatePrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"owl:state:user:1", "owl:state:user:2"}, keys)
}
