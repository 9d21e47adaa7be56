package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T, prefix string) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, prefix)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_Conformance(t *testing.T) {
	t.Parallel()

	runStoreConformance(t, func(t *testing.T) harness {
		store, mr := newMiniRedisStore(t, "test:")
		return harness{store: store, advance: mr.FastForward}
	})
}

func TestRedisStore_Layout(t *testing.T) {
	t.Parallel()

	store, mr := newMiniRedisStore(t, "lg:")
	ctx := context.Background()

	ok, err := store.CompareAndSwap(ctx, NewKey("rate_limit", "10.0.0.1"), NoVersion, []byte(`{"count":1}`), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, mr.Exists("lg:rate_limit/10.0.0.1"))
	assert.Equal(t, `{"count":1}`, mr.HGet("lg:rate_limit/10.0.0.1", "val"))
	assert.Equal(t, "1", mr.HGet("lg:rate_limit/10.0.0.1", "ver"))
	assert.Equal(t, time.Minute, mr.TTL("lg:rate_limit/10.0.0.1"))

	// Rewriting without a TTL clears the expiry.
	require.NoError(t, Put(ctx, store, NewKey("rate_limit", "10.0.0.1"), []byte("x"), 0))
	assert.Zero(t, mr.TTL("lg:rate_limit/10.0.0.1"))

	// The version counter is never listed.
	res, err := store.ListByPrefix(ctx, nil, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)
}

func TestRedisStore_Unavailable(t *testing.T) {
	t.Parallel()

	store, mr := newMiniRedisStore(t, "")
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := store.Get(ctx, NewKey("users", "u1"))
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = store.CompareAndSwap(ctx, NewKey("users", "u1"), NoVersion, []byte("x"), 0)
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.ErrorIs(t, store.Ping(ctx), ErrUnavailable)
}

func TestDialRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	store, err := DialRedis(context.Background(), mr.Addr(), "", 0, "lg:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.NoError(t, store.Ping(context.Background()))

	_, err = DialRedis(context.Background(), "127.0.0.1:1", "", 0, "")
	assert.Error(t, err)
}

func TestGlobEscape(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `a\*b\?c\[d\]e\\f`, globEscape(`a*b?c[d]e\f`))
	assert.Equal(t, "plain/", globEscape("plain/"))
}
