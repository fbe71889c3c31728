package replay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisStore_CheckAndRegister(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStoreWithClient(client)
	ctx := context.Background()

	ok, err := store.CheckAndRegister(ctx, "10.0.0.5", "nonce-1", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CheckAndRegister(ctx, "10.0.0.5", "nonce-1", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second registration of the same pair must lose")

	ok, err = store.CheckAndRegister(ctx, "10.0.0.6", "nonce-1", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "same nonce from a different source is independent")
}

func TestRedisStore_RetentionExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStoreWithClient(client)
	ctx := context.Background()

	ok, err := store.CheckAndRegister(ctx, "src", "n", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(5*time.Minute + time.Second)

	ok, err = store.CheckAndRegister(ctx, "src", "n", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "pair should be reusable after retention elapses")
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore("not-a-valid-url")
	assert.Error(t, err)
}
