package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	r, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisSetAndGet(t *testing.T) {
	r, _ := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "calendar:cn:2026-10-19:1280x720", []byte{0x89, 'P', 'N', 'G'}, time.Hour))

	val, found, err := r.Get(ctx, "calendar:cn:2026-10-19:1280x720")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, val)
}

func TestRedisGetNotFound(t *testing.T) {
	r, _ := setupRedis(t)

	val, found, err := r.Get(context.Background(), "no_such_key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestRedisExpiry(t *testing.T) {
	r, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, found, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedis(context.Background(), RedisOptions{Addr: addr})
	assert.Error(t, err)
}
