// Package retention removes sessions inactive beyond the retention window.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/minedeck/minedeck-server/internal/app/ledger"
	"github.com/minedeck/minedeck-server/internal/app/metrics"
	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/internal/app/system"
	"github.com/minedeck/minedeck-server/pkg/logger"
)

const (
	// Window is how long a session may stay inactive before it is swept.
	Window = 24 * time.Hour

	// DefaultSchedule runs the sweep hourly.
	DefaultSchedule = "@every 1h"
)

// Sweeper prunes expired sessions on a cron schedule. Boosts and withdrawals
// are an append-only ledger keyed by id and are never cascade-deleted when
// their owning session is swept; lookups against them stay valid.
type Sweeper struct {
	ledger   *ledger.Ledger
	log      *logger.Logger
	schedule string
	cron     *cron.Cron
	now      func() time.Time
}

var _ system.Service = (*Sweeper)(nil)

// NewSweeper constructs a sweeper. An empty schedule uses DefaultSchedule.
func NewSweeper(l *ledger.Ledger, schedule string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("retention")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{ledger: l, log: log, schedule: schedule, now: time.Now}
}

func (s *Sweeper) Name() string { return "retention-sweeper" }

// Start schedules periodic sweeps.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx, s.now()); err != nil {
			s.log.WithError(err).Warn("retention sweep failed")
		}
	}); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.WithField("schedule", s.schedule).Info("retention sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	s.cron = nil
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep removes every session whose last activity is strictly older than the
// retention window relative to now, and returns how many were removed. Stats
// are recomputed by the ledger before the pruned snapshot is persisted.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UTC().Add(-Window)

	removed := 0
	err := s.ledger.Update(ctx, func(snap *snapshot.Snapshot) error {
		for id, sess := range snap.Sessions {
			if sess.ExpiryReference().Before(cutoff) {
				delete(snap.Sessions, id)
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		metrics.SessionsSwept(removed)
		s.log.WithField("removed", removed).Info("expired sessions swept")
	}
	return removed, nil
}
