package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultReapInterval is how often expired entries are swept
	DefaultReapInterval = 2 * time.Minute

	// DefaultReapBatch bounds deletions per write-lock hold
	DefaultReapBatch = 256
)

// Reaper periodically removes expired entries so memory stays bounded
// even for keys that are never requested again.
type Reaper struct {
	store    *Store
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

// NewReaper creates a reaper for store. Intervals below one second are raised to one second.
func NewReaper(store *Store, interval time.Duration, logger zerolog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if interval < time.Second {
		interval = time.Second
	}
	return &Reaper{
		store:    store,
		interval: interval,
		batch:    DefaultReapBatch,
		logger:   logger,
	}
}

// SweepNow runs a single sweep and returns the number of removed entries.
func (r *Reaper) SweepNow() int {
	start := time.Now()
	removed := r.store.sweep(r.batch)

	r.logger.Debug().
		Int("removed", removed).
		Int("remaining", r.store.Len()).
		Dur("duration", time.Since(start)).
		Msg("Cache sweep complete")

	return removed
}

// Run schedules sweeps until ctx is cancelled, then waits for an in-flight sweep to finish.
func (r *Reaper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", r.interval), func() { r.SweepNow() }); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}

	r.logger.Info().Dur("interval", r.interval).Msg("Cache reaper started")
	c.Start()

	<-ctx.Done()

	<-c.Stop().Done()
	r.logger.Info().Msg("Cache reaper stopped")
	return nil
}
