package kv

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors returned by stores.
var (
	// ErrUnavailable means the backend could not be reached or refused the
	// call. Callers decide whether to fail open or closed.
	ErrUnavailable = errors.New("kv store unavailable")

	// ErrInvalidKey is returned for empty keys or keys with empty parts.
	ErrInvalidKey = errors.New("invalid kv key")

	// ErrInvalidCursor is returned when a list cursor cannot be decoded.
	ErrInvalidCursor = errors.New("invalid list cursor")
)

// Key is a hierarchical key such as {"rate_limit", "203.0.113.7"}.
type Key []string

// NewKey builds a Key from its parts.
func NewKey(parts ...string) Key {
	return Key(parts)
}

// String returns the encoded form of the key.
func (k Key) String() string {
	return EncodeKey(k)
}

// Validate rejects empty keys and empty parts.
func (k Key) Validate() error {
	if len(k) == 0 {
		return ErrInvalidKey
	}
	for _, p := range k {
		if p == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

// EncodeKey joins the path-escaped parts with '/'. Escaping keeps '/' out
// of individual parts so encoded keys sort and prefix-match per part.
func EncodeKey(k Key) string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// DecodeKey reverses EncodeKey.
func DecodeKey(s string) (Key, error) {
	if s == "" {
		return nil, ErrInvalidKey
	}
	raw := strings.Split(s, "/")
	k := make(Key, len(raw))
	for i, p := range raw {
		part, err := url.PathUnescape(p)
		if err != nil {
			return nil, ErrInvalidKey
		}
		k[i] = part
	}
	return k, nil
}

// listPrefix is the encoded prefix every key below k starts with.
func listPrefix(k Key) string {
	if len(k) == 0 {
		return ""
	}
	return EncodeKey(k) + "/"
}

// Version is an opaque token identifying one committed write. The empty
// Version means the key is absent.
type Version string

// NoVersion is the version of an absent key. Passing it to CompareAndSwap
// makes the write conditional on the key not existing.
const NoVersion Version = ""

// Entry is the result of a read. A missing key yields an Entry with
// NoVersion and a nil Value.
type Entry struct {
	Key     Key
	Value   []byte
	Version Version
}

// Exists reports whether the entry was found.
func (e Entry) Exists() bool {
	return e.Version != NoVersion
}

// ListOptions pages through ListByPrefix.
type ListOptions struct {
	// Limit caps the number of entries returned. Zero means no cap.
	Limit int

	// Cursor resumes after the last key of a previous page.
	Cursor string
}

// ListResult is one page of ListByPrefix. Cursor is empty on the last page.
type ListResult struct {
	Entries []Entry
	Cursor  string
}

// Store is a versioned key-value map with atomic compare-and-swap. Every
// implementation must be safe for concurrent use, and CompareAndSwap must
// be atomic across processes sharing the backend.
type Store interface {
	// Get reads a key. A missing or expired key is not an error.
	Get(ctx context.Context, key Key) (Entry, error)

	// CompareAndSwap writes value only if the key's current version equals
	// expected. It reports false, with a nil error, when another writer got
	// there first. A positive ttl expires the entry; zero keeps it forever.
	CompareAndSwap(ctx context.Context, key Key, expected Version, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// ListByPrefix returns live entries strictly below prefix, ordered by
	// encoded key.
	ListByPrefix(ctx context.Context, prefix Key, opts ListOptions) (ListResult, error)

	// Ping checks backend reachability.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Purger is implemented by stores that need expired entries removed
// explicitly. Redis expires keys on its own and does not implement it.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Put writes value unconditionally by reading the current version and
// retrying on conflict. It is for callers that own a key outright, such as
// bootstrap code.
func Put(ctx context.Context, s Store, key Key, value []byte, ttl time.Duration) error {
	for {
		cur, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		ok, err := s.CompareAndSwap(ctx, key, cur.Version, value, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func checkKey(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return key.Validate()
}

func decodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := url.QueryUnescape(cursor)
	if err != nil || raw == "" {
		return "", ErrInvalidCursor
	}
	return raw, nil
}

func encodeCursor(lastKey string) string {
	return url.QueryEscape(lastKey)
}

// page trims sorted encoded keys to the cursor and limit and returns the
// selected keys plus the next cursor.
func page(sorted []string, after string, limit int) ([]string, string) {
	start := 0
	if after != "" {
		for start < len(sorted) && sorted[start] <= after {
			start++
		}
	}
	rest := sorted[start:]
	if limit <= 0 || len(rest) <= limit {
		return rest, ""
	}
	selected := rest[:limit]
	return selected, encodeCursor(selected[len(selected)-1])
}
