package cacheinfra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client, DefaultRedisConfig())
	require.NoError(t, err)
	return mr, store
}

func TestNewRedisStore_Validation(t *testing.T) {
	_, err := NewRedisStore(nil, DefaultRedisConfig())
	require.Error(t, err)
	assert.Equal(t, "config error in field client: cannot be nil", err.Error())

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	_, err = NewRedisStore(client, RedisConfig{ScanCount: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ScanCount")

	_, err = NewRedisStore(client, RedisConfig{QueryTimeout: -time.Second, ScanCount: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QueryTimeout")
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	_, store := newRedisStore(t)

	_, found, err := store.Get(ctx, "users:1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "users:1", []byte{0x01, 0x92}, time.Minute))

	value, found, err := store.Get(ctx, "users:1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte{0x01, 0x92}, value)

	require.NoError(t, store.Delete(ctx, "users:1"))
	require.NoError(t, store.Delete(ctx, "users:1"), "deleting an absent key is not an error")

	_, found, err = store.Get(ctx, "users:1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_SetAppliesTTL(t *testing.T) {
	ctx := context.Background()
	mr, store := newRedisStore(t)

	require.NoError(t, store.Set(ctx, "users:list:10:0", []byte("x"), 60*time.Second))
	assert.Equal(t, 60*time.Second, mr.TTL("users:list:10:0"))

	mr.FastForward(61 * time.Second)

	_, found, err := store.Get(ctx, "users:list:10:0")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	mr, store := newRedisStore(t)

	// more keys than one SCAN batch
	for i := 0; i < 450; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("users:list:%d:0", i+1), "v"))
	}
	require.NoError(t, mr.Set("users:abc", "v"))
	require.NoError(t, mr.Set("users:listing", "v"))

	deleted, err := store.DeleteByPrefix(ctx, "users:list:")
	require.NoError(t, err)
	assert.Equal(t, 450, deleted)

	assert.True(t, mr.Exists("users:abc"))
	assert.True(t, mr.Exists("users:listing"))
	assert.Len(t, mr.Keys(), 2)
}

func TestRedisStore_DeleteByPrefix_SmallBatches(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultRedisConfig()
	cfg.ScanCount = 7
	store, err := NewRedisStore(client, cfg)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("users:list:10:%d", i*10), "v"))
		require.NoError(t, mr.Set(fmt.Sprintf("users:%d", i), "v"))
	}

	deleted, err := store.DeleteByPrefix(ctx, "users:list:")
	require.NoError(t, err)
	assert.Equal(t, 100, deleted)

	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "users:list:", "list page survived invalidation")
	}
	assert.Len(t, mr.Keys(), 100)
}

func TestRedisStore_DeleteByPrefix_NoMatches(t *testing.T) {
	_, store := newRedisStore(t)

	deleted, err := store.DeleteByPrefix(context.Background(), "users:list:")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRedisStore_Unreachable(t *testing.T) {
	ctx := context.Background()
	mr, store := newRedisStore(t)
	require.NoError(t, store.Ping(ctx))

	mr.Close()

	assert.Error(t, store.Ping(ctx))
	_, _, err := store.Get(ctx, "users:1")
	assert.Error(t, err)
	assert.Error(t, store.Set(ctx, "users:1", []byte("x"), time.Minute))
	_, err = store.DeleteByPrefix(ctx, "users:list:")
	assert.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "users:list:", want: "users:list:"},
		{in: "a*b", want: `a\*b`},
		{in: "a?b", want: `a\?b`},
		{in: "[x]", want: `\[x\]`},
		{in: `a\b`, want: `a\\b`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeGlob(tt.in))
		})
	}
}
