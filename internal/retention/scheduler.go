// Package retention runs the periodic sweep of expired page captures.
package retention

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/glean/internal/ops"
	"github.com/hpungsan/glean/internal/settings"
)

// DefaultInterval is the daily sweep cadence.
const DefaultInterval = 24 * time.Hour

// Scheduler sweeps expired pages once at start and then on every tick.
// The retention window is re-read from settings on each run.
type Scheduler struct {
	db       *sql.DB
	interval time.Duration
	now      func() time.Time
}

// New creates a Scheduler. A non-positive interval means DefaultInterval.
func New(database *sql.DB, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{db: database, interval: interval, now: time.Now}
}

// RunOnce loads the current retention window and sweeps.
func (s *Scheduler) RunOnce(ctx context.Context) (*ops.SweepOutput, error) {
	st, err := settings.Load(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return ops.Sweep(ctx, s.db, ops.SweepInput{
		RetentionDays: st.RetentionDays,
		Now:           s.now().UnixMilli(),
	})
}

// Run sweeps until ctx is done. Sweep errors are logged and the schedule continues.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("Retention scheduler started")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	out, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Retention sweep failed")
		}
		return
	}
	if out.Removed > 0 || out.Failed > 0 {
		log.Info().
			Int("removed", out.Removed).
			Int("failed", out.Failed).
			Int("skipped", out.Skipped).
			Msg("Expired pages swept")
	}
}
