package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/vyrodovalexey/langgate/internal/observability"
)

const backendSQLite = "sqlite"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	version    INTEGER NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_kv_entries_expires_at ON kv_entries(expires_at) WHERE expires_at > 0;
CREATE TABLE IF NOT EXISTS kv_sequence (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	value INTEGER NOT NULL
);
INSERT OR IGNORE INTO kv_sequence (id, value) VALUES (1, 0);
`

// SQLiteStore persists entries in a single SQLite file. Writes are
// serialized through one connection and IMMEDIATE transactions, which also
// makes CompareAndSwap safe across processes sharing the file.
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	logger observability.Logger
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteClock overrides the clock used for expiry.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		s.now = now
	}
}

// WithSQLiteLogger sets the logger.
func WithSQLiteLogger(logger observability.Logger) SQLiteOption {
	return func(s *SQLiteStore) {
		s.logger = logger
	}
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("sqlite store initialized", observability.String("path", path))
	return s, nil
}

func (s *SQLiteStore) nowMillis() int64 {
	return s.now().UnixMilli()
}

func sqlErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key Key) (Entry, error) {
	if err := checkKey(ctx, key); err != nil {
		return Entry{}, err
	}
	ctx, obs := startOp(ctx, backendSQLite, "get", key)

	var (
		value   []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM kv_entries
		 WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		EncodeKey(key), s.nowMillis(),
	).Scan(&value, &version)

	entry := Entry{Key: key}
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		err = sqlErr(err)
		obs.end(err)
		return Entry{}, err
	default:
		entry.Value = value
		entry.Version = Version(strconv.FormatInt(version, 10))
	}
	obs.end(nil)
	return entry, nil
}

// CompareAndSwap implements Store.
func (s *SQLiteStore) CompareAndSwap(
	ctx context.Context, key Key, expected Version, value []byte, ttl time.Duration,
) (swapped bool, err error) {
	if err := checkKey(ctx, key); err != nil {
		return false, err
	}
	ctx, obs := startOp(ctx, backendSQLite, "cas", key)
	defer func() { obs.endCAS(swapped, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, sqlErr(err)
	}
	defer func() {
		if !swapped {
			_ = tx.Rollback()
		}
	}()

	now := s.nowMillis()
	enc := EncodeKey(key)

	current := NoVersion
	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM kv_entries WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		enc, now,
	).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, sqlErr(err)
	default:
		current = Version(strconv.FormatInt(version, 10))
	}
	if current != expected {
		return false, nil
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE kv_sequence SET value = value + 1 WHERE id = 1 RETURNING value`,
	).Scan(&next); err != nil {
		return false, sqlErr(err)
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = now + ttl.Milliseconds()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, version, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			version = excluded.version,
			expires_at = excluded.expires_at`,
		enc, value, next, expiresAt,
	); err != nil {
		return false, sqlErr(err)
	}

	if err := tx.Commit(); err != nil {
		return false, sqlErr(err)
	}
	return true, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}
	ctx, obs := startOp(ctx, backendSQLite, "delete", key)

	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, EncodeKey(key))
	err = sqlErr(err)
	obs.end(err)
	return err
}

// ListByPrefix implements Store.
func (s *SQLiteStore) ListByPrefix(ctx context.Context, prefix Key, opts ListOptions) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}
	after, err := decodeCursor(opts.Cursor)
	if err != nil {
		return ListResult{}, err
	}
	ctx, obs := startOp(ctx, backendSQLite, "list", prefix)

	want := listPrefix(prefix)
	limit := -1
	if opts.Limit > 0 {
		// Fetch one extra row to learn whether another page exists.
		limit = opts.Limit + 1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, version FROM kv_entries
		 WHERE substr(key, 1, ?) = ? AND key > ? AND (expires_at = 0 OR expires_at > ?)
		 ORDER BY key LIMIT ?`,
		len(want), want, after, s.nowMillis(), limit,
	)
	if err != nil {
		err = sqlErr(err)
		obs.end(err)
		return ListResult{}, err
	}
	defer rows.Close()

	result, err := scanEntries(rows, opts.Limit)
	err = sqlErr(err)
	obs.end(err)
	return result, err
}

// rowScanner is satisfied by *sql.Rows and pgx.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntries(rows rowScanner, limit int) (ListResult, error) {
	var (
		result  ListResult
		lastKey string
	)
	for rows.Next() {
		if limit > 0 && len(result.Entries) == limit {
			result.Cursor = encodeCursor(lastKey)
			break
		}
		var (
			enc     string
			value   []byte
			version int64
		)
		if err := rows.Scan(&enc, &value, &version); err != nil {
			return ListResult{}, err
		}
		key, err := DecodeKey(enc)
		if err != nil {
			continue
		}
		lastKey = enc
		result.Entries = append(result.Entries, Entry{
			Key:     key,
			Value:   value,
			Version: Version(strconv.FormatInt(version, 10)),
		})
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, err
	}
	if result.Entries == nil {
		result.Entries = []Entry{}
	}
	return result, nil
}

// PurgeExpired implements Purger.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE expires_at > 0 AND expires_at <= ?`, s.nowMillis())
	if err != nil {
		return 0, sqlErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sqlErr(err)
	}
	recordPurged(backendSQLite, n)
	return n, nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return sqlErr(s.db.PingContext(ctx))
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
