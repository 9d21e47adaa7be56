//go:build integration

package kv

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Requires LANGGATE_TEST_POSTGRES_DSN pointing at a disposable database;
// the kv_entries table is truncated before every subtest.
func TestPostgresStore_Conformance(t *testing.T) {
	dsn := os.Getenv("LANGGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LANGGATE_TEST_POSTGRES_DSN not set")
	}

	runStoreConformance(t, func(t *testing.T) harness {
		clock := newFakeClock()
		store, err := OpenPostgres(context.Background(), dsn, WithPostgresClock(clock.Now))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })

		_, err = store.pool.Exec(context.Background(), `TRUNCATE kv_entries`)
		require.NoError(t, err)
		return harness{store: store, advance: clock.Advance}
	})
}
