package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_Sweep(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewMemoryStore(WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, Put(ctx, store, NewKey("rate_limit", "a"), []byte("1"), time.Second))
	require.NoError(t, Put(ctx, store, NewKey("rate_limit", "b"), []byte("1"), time.Second))
	clock.Advance(time.Minute)

	s := NewSweeper(store, "@every 1h", nil)
	assert.Equal(t, int64(2), s.Sweep(ctx))
	assert.Zero(t, store.Len())
}

func TestSweeper_StartStop(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSweeper(store, "@every 1m", nil)
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx), "second start is a no-op")
	s.Stop()
	s.Stop()
}

func TestSweeper_Schedules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"disabled", "", false},
		{"descriptor", "@every 30s", false},
		{"cron", "*/5 * * * *", false},
		{"invalid", "every minute", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewSweeper(NewMemoryStore(), tt.schedule, nil)
			err := s.Start(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			s.Stop()
		})
	}
}
