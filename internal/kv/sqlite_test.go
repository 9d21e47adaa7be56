package kv

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T, clock *fakeClock) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nested", "data.sqlite3")
	store, err := OpenSQLite(context.Background(), path, WithSQLiteClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Conformance(t *testing.T) {
	t.Parallel()

	runStoreConformance(t, func(t *testing.T) harness {
		clock := newFakeClock()
		return harness{store: newSQLiteStore(t, clock), advance: clock.Advance}
	})
}

func TestSQLiteStore_PurgeExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := newSQLiteStore(t, clock)
	ctx := context.Background()

	require.NoError(t, Put(ctx, s, NewKey("rate_limit", "a"), []byte("1"), time.Second))
	require.NoError(t, Put(ctx, s, NewKey("users", "u"), []byte("1"), 0))

	clock.Advance(time.Minute)
	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.sqlite3")
	ctx := context.Background()

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, Put(ctx, first, NewKey("users", "u1"), []byte("alice"), 0))
	before, err := first.Get(ctx, NewKey("users", "u1"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	e, err := second.Get(ctx, NewKey("users", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "alice", string(e.Value))

	// Versions keep increasing across restarts.
	require.NoError(t, Put(ctx, second, NewKey("users", "u1"), []byte("bob"), 0))
	after, err := second.Get(ctx, NewKey("users", "u1"))
	require.NoError(t, err)
	assert.NotEqual(t, before.Version, after.Version)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := OpenSQLite(context.Background(), "")
	assert.Error(t, err)
}
