package retention

import (
	"context"
	"testing"
	"time"

	"github.com/minedeck/minedeck-server/internal/app/domain/boost"
	"github.com/minedeck/minedeck-server/internal/app/domain/session"
	"github.com/minedeck/minedeck-server/internal/app/domain/withdrawal"
	"github.com/minedeck/minedeck-server/internal/app/ledger"
	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/internal/app/storage/memory"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(memory.New(), nil)
	if err := l.Open(context.Background()); err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return l
}

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	err := l.Update(ctx, func(snap *snapshot.Snapshot) error {
		snap.Sessions["stale"] = session.Session{
			ID:         "stale",
			LastActive: now.Add(-Window - time.Second),
		}
		snap.Sessions["edge"] = session.Session{
			ID:         "edge",
			LastActive: now.Add(-Window),
		}
		snap.Sessions["fresh"] = session.Session{
			ID:         "fresh",
			LastActive: now.Add(-time.Hour),
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	sw := NewSweeper(l, "", nil)
	removed, err := sw.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed: %d", removed)
	}

	err = l.View(ctx, func(snap *snapshot.Snapshot) error {
		if _, ok := snap.Sessions["stale"]; ok {
			t.Fatal("stale session survived")
		}
		// Exactly at the window boundary is not strictly older, so it stays.
		if _, ok := snap.Sessions["edge"]; !ok {
			t.Fatal("boundary session swept")
		}
		if _, ok := snap.Sessions["fresh"]; !ok {
			t.Fatal("fresh session swept")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSweep_FallsBackToStartedAt(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	err := l.Update(ctx, func(snap *snapshot.Snapshot) error {
		// Never read since creation: LastActive is zero.
		snap.Sessions["old"] = session.Session{
			ID:        "old",
			StartedAt: now.Add(-48 * time.Hour),
		}
		snap.Sessions["new"] = session.Session{
			ID:        "new",
			StartedAt: now.Add(-time.Hour),
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	removed, err := NewSweeper(l, "", nil).Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed: %d", removed)
	}
}

func TestSweep_KeepsBoostsAndWithdrawals(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	err := l.Update(ctx, func(snap *snapshot.Snapshot) error {
		snap.Sessions["stale"] = session.Session{
			ID:         "stale",
			LastActive: now.Add(-48 * time.Hour),
		}
		snap.Boosts = append(snap.Boosts, boost.Boost{ID: "b1", SessionID: "stale"})
		snap.Withdrawals["w1"] = withdrawal.Withdrawal{
			ID:        "w1",
			SessionID: "stale",
			Amount:    2,
			Status:    withdrawal.StatusPending,
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := NewSweeper(l, "", nil).Sweep(ctx, now); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	err = l.View(ctx, func(snap *snapshot.Snapshot) error {
		if snap.FindBoost("b1") == nil {
			t.Fatal("boost cascade-deleted")
		}
		if _, ok := snap.Withdrawals["w1"]; !ok {
			t.Fatal("withdrawal cascade-deleted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	l := newTestLedger(t)
	sw := NewSweeper(l, "@every 1h", nil)

	ctx := context.Background()
	if err := sw.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sw.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop on a never-started sweeper is a no-op.
	if err := sw.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestNewSweeper_BadSchedule(t *testing.T) {
	sw := NewSweeper(newTestLedger(t), "not a schedule", nil)
	if err := sw.Start(context.Background()); err == nil {
		t.Fatal("bad schedule should fail at start")
	}
}
