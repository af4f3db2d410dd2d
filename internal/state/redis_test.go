package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, "patientmon:", ttl)
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func TestRedisStore_SetGet(t *testing.T) {
	mr, store := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Set(ctx, "patient:1", []byte(`{"id":"1"}`)))

	val, err := store.Get(ctx, "patient:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, string(val))

	// keys are namespaced by the prefix
	assert.True(t, mr.Exists("patientmon:patient:1"))
	assert.Equal(t, time.Minute, mr.TTL("patientmon:patient:1"))
}

func TestRedisStore_Miss(t *testing.T) {
	_, store := setupTestRedis(t, time.Minute)

	val, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, store := setupTestRedis(t, time.Second)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	mr.FastForward(2 * time.Second)

	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisStore_Delete(t *testing.T) {
	_, store := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, store.Delete(ctx, "k"))

	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisStore_ServerDown(t *testing.T) {
	mr, store := setupTestRedis(t, time.Minute)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestNoopStore(t *testing.T) {
	store := NewNoopStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	val, err := store.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, val)
	assert.NoError(t, store.Delete(ctx, "k"))
	assert.NoError(t, store.Close())
}
