package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vyrodovalexey/langgate/internal/observability"
)

// Sweeper periodically removes expired entries from stores that keep them
// on disk after their TTL (SQLite, PostgreSQL, memory).
type Sweeper struct {
	purger   Purger
	schedule string
	logger   observability.Logger
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper. schedule accepts standard cron syntax and
// descriptors such as "@every 1m".
func NewSweeper(purger Purger, schedule string, logger observability.Logger) *Sweeper {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Sweeper{
		purger:   purger,
		schedule: schedule,
		logger:   logger.With(observability.String("component", "kv.sweeper")),
		timeout:  30 * time.Second,
		cron:     cron.New(),
	}
}

// Start schedules the sweep. An empty schedule disables the sweeper.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, expired entries are filtered on read only")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("store sweeper started", observability.String("schedule", s.schedule))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("store sweeper stopped")
}

// Sweep runs one purge pass and returns the number of entries removed.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Warn("expired entry sweep failed", observability.Error(err))
		return 0
	}
	if n > 0 {
		s.logger.Debug("expired entries purged",
			observability.Int64("count", n),
			observability.Duration("duration", time.Since(start)),
		)
	}
	return n
}
