package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watchedYAML = `
logging:
  level: %s
store:
  driver: memory
auth:
  jwt:
    secret: watched
`

func writeWatched(t *testing.T, path, level string) {
	t.Helper()
	content := []byte(fmt.Sprintf(watchedYAML, level))
	require.NoError(t, os.WriteFile(path, content, 0o600))
}

func TestWatcher_StartAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "langgate.yaml")
	writeWatched(t, path, "info")

	var reloads atomic.Int32
	var lastLevel atomic.Value
	w, err := NewWatcher(path, func(cfg *Config) {
		lastLevel.Store(cfg.Logging.Level)
		reloads.Add(1)
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	assert.Equal(t, "info", w.Current().Logging.Level)

	writeWatched(t, path, "debug")

	require.Eventually(t, func() bool {
		v, _ := lastLevel.Load().(string)
		return v == "debug"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "debug", w.Current().Logging.Level)
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
}

func TestWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "langgate.yaml")
	writeWatched(t, path, "info")

	var errs atomic.Int32
	w, err := NewWatcher(path, nil,
		WithDebounceDelay(10*time.Millisecond),
		WithErrorCallback(func(error) { errs.Add(1) }),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: etcd\n"), 0o600))

	require.Eventually(t, func() bool { return errs.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "info", w.Current().Logging.Level)
}

func TestWatcher_StartFailsOnInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "langgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: etcd\n"), 0o600))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
}

func TestWatcher_ManualReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "langgate.yaml")
	writeWatched(t, path, "warn")

	var got string
	w, err := NewWatcher(path, func(cfg *Config) { got = cfg.Logging.Level })
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, w.Reload())
	assert.Equal(t, "warn", got)
	assert.Equal(t, "warn", w.Current().Logging.Level)
}

func TestWatcher_StopIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "langgate.yaml")
	writeWatched(t, path, "info")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
