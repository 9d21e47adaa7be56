package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vyrodovalexey/langgate/internal/observability"
)

const backendPostgres = "postgres"

const postgresSchema = `
CREATE SEQUENCE IF NOT EXISTS kv_version_seq;
CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT COLLATE "C" PRIMARY KEY,
	value      BYTEA NOT NULL,
	version    BIGINT NOT NULL,
	expires_at BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_kv_entries_expires_at ON kv_entries (expires_at) WHERE expires_at > 0;
`

// PostgresStore shares entries between any number of instances through
// PostgreSQL. Each CompareAndSwap is a single conditional statement.
type PostgresStore struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	logger observability.Logger
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresClock overrides the clock used for expiry.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		s.now = now
	}
}

// WithPostgresLogger sets the logger.
func WithPostgresLogger(logger observability.Logger) PostgresOption {
	return func(s *PostgresStore) {
		s.logger = logger
	}
}

// OpenPostgres connects to dsn, pings, and creates the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(connectCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("postgres store initialized",
		observability.String("host", poolCfg.ConnConfig.Host),
		observability.String("database", poolCfg.ConnConfig.Database),
		observability.Int("maxConns", int(poolCfg.MaxConns)),
	)
	return s, nil
}

func (s *PostgresStore) nowMillis() int64 {
	return s.now().UnixMilli()
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key Key) (Entry, error) {
	if err := checkKey(ctx, key); err != nil {
		return Entry{}, err
	}
	ctx, obs := startOp(ctx, backendPostgres, "get", key)

	var (
		value   []byte
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT value, version FROM kv_entries
		 WHERE key = $1 AND (expires_at = 0 OR expires_at > $2)`,
		EncodeKey(key), s.nowMillis(),
	).Scan(&value, &version)

	entry := Entry{Key: key}
	switch {
	case errors.Is(err, pgx.ErrNoRows):
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
func (s *PostgresStore) CompareAndSwap(
	ctx context.Context, key Key, expected Version, value []byte, ttl time.Duration,
) (bool, error) {
	if err := checkKey(ctx, key); err != nil {
		return false, err
	}
	ctx, obs := startOp(ctx, backendPostgres, "cas", key)

	now := s.nowMillis()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now + ttl.Milliseconds()
	}
	enc := EncodeKey(key)

	var affected int64
	if expected == NoVersion {
		// Insert, or take over a row that has expired but not been purged.
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO kv_entries (key, value, version, expires_at)
			 VALUES ($1, $2, nextval('kv_version_seq'), $3)
			 ON CONFLICT (key) DO UPDATE SET
				value = excluded.value,
				version = excluded.version,
				expires_at = excluded.expires_at
			 WHERE kv_entries.expires_at > 0 AND kv_entries.expires_at <= $4`,
			enc, value, expiresAt, now,
		)
		if err != nil {
			err = sqlErr(err)
			obs.endCAS(false, err)
			return false, err
		}
		affected = tag.RowsAffected()
	} else {
		want, err := strconv.ParseInt(string(expected), 10, 64)
		if err != nil {
			obs.endCAS(false, nil)
			return false, nil
		}
		tag, err := s.pool.Exec(ctx,
			`UPDATE kv_entries SET value = $2, version = nextval('kv_version_seq'), expires_at = $3
			 WHERE key = $1 AND version = $4 AND (expires_at = 0 OR expires_at > $5)`,
			enc, value, expiresAt, want, now,
		)
		if err != nil {
			err = sqlErr(err)
			obs.endCAS(false, err)
			return false, err
		}
		affected = tag.RowsAffected()
	}

	swapped := affected == 1
	obs.endCAS(swapped, nil)
	return swapped, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}
	ctx, obs := startOp(ctx, backendPostgres, "delete", key)

	_, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, EncodeKey(key))
	err = sqlErr(err)
	obs.end(err)
	return err
}

// ListByPrefix implements Store.
func (s *PostgresStore) ListByPrefix(ctx context.Context, prefix Key, opts ListOptions) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}
	after, err := decodeCursor(opts.Cursor)
	if err != nil {
		return ListResult{}, err
	}
	ctx, obs := startOp(ctx, backendPostgres, "list", prefix)

	var limit *int
	if opts.Limit > 0 {
		n := opts.Limit + 1
		limit = &n
	}

	rows, err := s.pool.Query(ctx,
		`SELECT key, value, version FROM kv_entries
		 WHERE starts_with(key, $1) AND key > $2 AND (expires_at = 0 OR expires_at > $3)
		 ORDER BY key LIMIT $4`,
		listPrefix(prefix), after, s.nowMillis(), limit,
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

// PurgeExpired implements Purger.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM kv_entries WHERE expires_at > 0 AND expires_at <= $1`, s.nowMillis())
	if err != nil {
		return 0, sqlErr(err)
	}
	n := tag.RowsAffected()
	recordPurged(backendPostgres, n)
	return n, nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return sqlErr(s.pool.Ping(ctx))
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
