package kv

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/langgate/internal/config"
	"github.com/vyrodovalexey/langgate/internal/observability"
)

// Open builds the store selected by cfg.Driver, wrapped in a circuit
// breaker when enabled.
func Open(ctx context.Context, cfg config.StoreConfig, logger observability.Logger) (Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger = logger.With(observability.String("component", "kv"))

	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		store = NewMemoryStore()
		logger.Warn("using in-memory store, data is lost on restart and not shared between instances")
	case config.DriverRedis:
		store, err = DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix,
			WithRedisLogger(logger))
	case config.DriverSQLite:
		store, err = OpenSQLite(ctx, cfg.SQLite.Path, WithSQLiteLogger(logger))
	case config.DriverPostgres:
		store, err = OpenPostgres(ctx, cfg.Postgres.DSN, WithPostgresLogger(logger))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Breaker.Enabled {
		store = NewBreakerStore(store, "kv_"+cfg.Driver, cfg.Breaker.MaxFailures, cfg.Breaker.Timeout, logger)
	}
	return store, nil
}
