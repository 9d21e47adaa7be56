package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Conformance(t *testing.T) {
	t.Parallel()

	runStoreConformance(t, func(t *testing.T) harness {
		clock := newFakeClock()
		return harness{
			store:   NewMemoryStore(WithMemoryClock(clock.Now)),
			advance: clock.Advance,
		}
	})
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewMemoryStore(WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, Put(ctx, s, NewKey("rate_limit", "a"), []byte("1"), time.Second))
	require.NoError(t, Put(ctx, s, NewKey("rate_limit", "b"), []byte("1"), time.Minute))
	require.NoError(t, Put(ctx, s, NewKey("users", "u"), []byte("1"), 0))

	clock.Advance(2 * time.Second)
	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	key := NewKey("users", "u1")

	buf := []byte("original")
	require.NoError(t, Put(ctx, s, key, buf, 0))
	buf[0] = 'X'

	e, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "original", string(e.Value))

	e.Value[0] = 'Y'
	again, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "original", string(again.Value))
}

func TestMemoryStore_Closed(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), NewKey("users", "u1"))
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = s.CompareAndSwap(context.Background(), NewKey("users", "u1"), NoVersion, nil, 0)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), ErrUnavailable)
}
