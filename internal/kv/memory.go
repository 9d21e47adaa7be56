package kv

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const backendMemory = "memory"

type memoryEntry struct {
	key       Key
	value     []byte
	version   uint64
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store. It suits tests and single-instance
// deployments; CompareAndSwap is atomic only within the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	seq     uint64
	now     func() time.Time
	closed  bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the clock used for expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key Key) (Entry, error) {
	if err := checkKey(ctx, key); err != nil {
		return Entry{}, err
	}
	_, obs := startOp(ctx, backendMemory, "get", key)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		obs.end(ErrUnavailable)
		return Entry{}, ErrUnavailable
	}

	entry := Entry{Key: key}
	if e, ok := s.entries[EncodeKey(key)]; ok && !e.expired(s.now()) {
		entry.Value = append([]byte(nil), e.value...)
		entry.Version = Version(strconv.FormatUint(e.version, 10))
	}
	obs.end(nil)
	return entry, nil
}

// CompareAndSwap implements Store.
func (s *MemoryStore) CompareAndSwap(
	ctx context.Context, key Key, expected Version, value []byte, ttl time.Duration,
) (bool, error) {
	if err := checkKey(ctx, key); err != nil {
		return false, err
	}
	_, obs := startOp(ctx, backendMemory, "cas", key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		obs.end(ErrUnavailable)
		return false, ErrUnavailable
	}

	now := s.now()
	enc := EncodeKey(key)
	current := NoVersion
	if e, ok := s.entries[enc]; ok && !e.expired(now) {
		current = Version(strconv.FormatUint(e.version, 10))
	}
	if current != expected {
		obs.endCAS(false, nil)
		return false, nil
	}

	s.seq++
	e := &memoryEntry{
		key:     append(Key(nil), key...),
		value:   append([]byte(nil), value...),
		version: s.seq,
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.entries[enc] = e
	obs.endCAS(true, nil)
	return true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}
	_, obs := startOp(ctx, backendMemory, "delete", key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		obs.end(ErrUnavailable)
		return ErrUnavailable
	}
	delete(s.entries, EncodeKey(key))
	obs.end(nil)
	return nil
}

// ListByPrefix implements Store.
func (s *MemoryStore) ListByPrefix(ctx context.Context, prefix Key, opts ListOptions) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}
	after, err := decodeCursor(opts.Cursor)
	if err != nil {
		return ListResult{}, err
	}
	_, obs := startOp(ctx, backendMemory, "list", prefix)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		obs.end(ErrUnavailable)
		return ListResult{}, ErrUnavailable
	}

	now := s.now()
	want := listPrefix(prefix)
	var keys []string
	for enc, e := range s.entries {
		if strings.HasPrefix(enc, want) && !e.expired(now) {
			keys = append(keys, enc)
		}
	}
	sort.Strings(keys)

	selected, next := page(keys, after, opts.Limit)
	result := ListResult{Entries: make([]Entry, 0, len(selected)), Cursor: next}
	for _, enc := range selected {
		e := s.entries[enc]
		result.Entries = append(result.Entries, Entry{
			Key:     append(Key(nil), e.key...),
			Value:   append([]byte(nil), e.value...),
			Version: Version(strconv.FormatUint(e.version, 10)),
		})
	}
	obs.end(nil)
	return result, nil
}

// PurgeExpired implements Purger.
func (s *MemoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for enc, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, enc)
			n++
		}
	}
	recordPurged(backendMemory, n)
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrUnavailable
	}
	return nil
}

// Close implements Store. Calls after Close return ErrUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
