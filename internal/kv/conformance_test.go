package kv

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness exposes a store plus a way to move its notion of time forward.
type harness struct {
	store   Store
	advance func(time.Duration)
}

// fakeClock is a manually advanced clock safe for concurrent reads.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// runStoreConformance exercises the Store contract against one backend.
func runStoreConformance(t *testing.T, newHarness func(t *testing.T) harness) {
	t.Run("get missing", func(t *testing.T) {
		h := newHarness(t)
		e, err := h.store.Get(context.Background(), NewKey("users", "nobody"))
		require.NoError(t, err)
		assert.False(t, e.Exists())
		assert.Equal(t, NoVersion, e.Version)
		assert.Nil(t, e.Value)
	})

	t.Run("create only if absent", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := NewKey("users_by_email", "a@example.com")

		ok, err := h.store.CompareAndSwap(ctx, key, NoVersion, []byte("u1"), 0)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = h.store.CompareAndSwap(ctx, key, NoVersion, []byte("u2"), 0)
		require.NoError(t, err)
		assert.False(t, ok, "second create must lose")

		e, err := h.store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("u1"), e.Value)
		assert.True(t, e.Exists())
	})

	t.Run("swap requires current version", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := NewKey("rate_limit", "10.0.0.1")

		require.NoError(t, Put(ctx, h.store, key, []byte("v1"), 0))
		first, err := h.store.Get(ctx, key)
		require.NoError(t, err)

		ok, err := h.store.CompareAndSwap(ctx, key, first.Version, []byte("v2"), 0)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = h.store.CompareAndSwap(ctx, key, first.Version, []byte("stale"), 0)
		require.NoError(t, err)
		assert.False(t, ok, "stale version must lose")

		ok, err = h.store.CompareAndSwap(ctx, key, NoVersion, []byte("stale"), 0)
		require.NoError(t, err)
		assert.False(t, ok, "existing key is not absent")

		second, err := h.store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), second.Value)
		assert.NotEqual(t, first.Version, second.Version)
	})

	t.Run("delete", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := NewKey("keys", "k1")

		require.NoError(t, Put(ctx, h.store, key, []byte("x"), 0))
		require.NoError(t, h.store.Delete(ctx, key))
		require.NoError(t, h.store.Delete(ctx, key), "deleting a missing key is fine")

		e, err := h.store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, e.Exists())

		ok, err := h.store.CompareAndSwap(ctx, key, NoVersion, []byte("again"), 0)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("expiry", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := NewKey("rate_limit", "192.0.2.1")

		ok, err := h.store.CompareAndSwap(ctx, key, NoVersion, []byte("1"), 2*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		h.advance(time.Second)
		e, err := h.store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, e.Exists())

		h.advance(2 * time.Second)
		e, err = h.store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, e.Exists())

		ok, err = h.store.CompareAndSwap(ctx, key, NoVersion, []byte("fresh"), 0)
		require.NoError(t, err)
		assert.True(t, ok, "an expired key counts as absent")
	})

	t.Run("list by prefix with paging", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			require.NoError(t, Put(ctx, h.store, NewKey("languages", fmt.Sprintf("lang-%d", i)), []byte(strconv.Itoa(i)), 0))
		}
		require.NoError(t, Put(ctx, h.store, NewKey("languages_by_code", "en"), []byte("x"), 0))
		require.NoError(t, Put(ctx, h.store, NewKey("users", "u1"), []byte("x"), 0))

		first, err := h.store.ListByPrefix(ctx, NewKey("languages"), ListOptions{Limit: 2})
		require.NoError(t, err)
		require.Len(t, first.Entries, 2)
		assert.Equal(t, NewKey("languages", "lang-0"), first.Entries[0].Key)
		assert.Equal(t, NewKey("languages", "lang-1"), first.Entries[1].Key)
		require.NotEmpty(t, first.Cursor)

		second, err := h.store.ListByPrefix(ctx, NewKey("languages"), ListOptions{Limit: 2, Cursor: first.Cursor})
		require.NoError(t, err)
		require.Len(t, second.Entries, 2)
		assert.Equal(t, NewKey("languages", "lang-2"), second.Entries[0].Key)

		third, err := h.store.ListByPrefix(ctx, NewKey("languages"), ListOptions{Limit: 2, Cursor: second.Cursor})
		require.NoError(t, err)
		require.Len(t, third.Entries, 1)
		assert.Equal(t, []byte("4"), third.Entries[0].Value)
		assert.Empty(t, third.Cursor)

		all, err := h.store.ListByPrefix(ctx, NewKey("languages"), ListOptions{})
		require.NoError(t, err)
		assert.Len(t, all.Entries, 5, "languages_by_code must not match the languages prefix")
		assert.Empty(t, all.Cursor)
	})

	t.Run("list skips expired", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, Put(ctx, h.store, NewKey("keys", "short"), []byte("x"), time.Second))
		require.NoError(t, Put(ctx, h.store, NewKey("keys", "long"), []byte("y"), 0))
		h.advance(2 * time.Second)

		res, err := h.store.ListByPrefix(ctx, NewKey("keys"), ListOptions{})
		require.NoError(t, err)
		require.Len(t, res.Entries, 1)
		assert.Equal(t, NewKey("keys", "long"), res.Entries[0].Key)
	})

	t.Run("keys with separators round trip", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := NewKey("rate_limit", "2001:db8::1/64", "a b*c")

		require.NoError(t, Put(ctx, h.store, key, []byte("x"), 0))
		res, err := h.store.ListByPrefix(ctx, NewKey("rate_limit"), ListOptions{})
		require.NoError(t, err)
		require.Len(t, res.Entries, 1)
		assert.Equal(t, key, res.Entries[0].Key)
	})

	t.Run("invalid key", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.store.Get(context.Background(), NewKey())
		assert.ErrorIs(t, err, ErrInvalidKey)
		_, err = h.store.CompareAndSwap(context.Background(), NewKey("users", ""), NoVersion, nil, 0)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.store.ListByPrefix(context.Background(), NewKey("users"), ListOptions{Cursor: "%zz"})
		assert.ErrorIs(t, err, ErrInvalidCursor)
	})

	t.Run("cancelled context", func(t *testing.T) {
		h := newHarness(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := h.store.Get(ctx, NewKey("users", "u1"))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("concurrent increments never lose updates", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := NewKey("counter")

		const workers, perWorker = 8, 10
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					for {
						cur, err := h.store.Get(ctx, key)
						if !assert.NoError(t, err) {
							return
						}
						n := 0
						if cur.Exists() {
							n, _ = strconv.Atoi(string(cur.Value))
						}
						ok, err := h.store.CompareAndSwap(ctx, key, cur.Version, []byte(strconv.Itoa(n+1)), 0)
						if !assert.NoError(t, err) {
							return
						}
						if ok {
							break
						}
					}
				}
			}()
		}
		wg.Wait()

		e, err := h.store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(workers*perWorker), string(e.Value))
	})

	t.Run("ping", func(t *testing.T) {
		h := newHarness(t)
		assert.NoError(t, h.store.Ping(context.Background()))
	})
}
