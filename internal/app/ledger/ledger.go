// Package ledger owns the in-memory snapshot and serializes every mutation
// behind a single writer lock. This replaces the unguarded
// load-mutate-save interleaving of the original store: two concurrent
// operations can no longer overwrite each other's unseen changes.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minedeck/minedeck-server/internal/app/metrics"
	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/internal/app/storage"
	"github.com/minedeck/minedeck-server/pkg/logger"
)

// Ledger holds the authoritative snapshot and the backing store. All access
// goes through Update or View; the snapshot is never exposed for unmanaged
// mutation.
type Ledger struct {
	mu    sync.Mutex
	snap  snapshot.Snapshot
	store storage.SnapshotStore
	log   *logger.Logger
	open  bool
}

// New constructs a ledger over the given store. Open must be called before
// any Update or View.
func New(store storage.SnapshotStore, log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Ledger{store: store, log: log}
}

// Open loads and reshapes the persisted snapshot once.
func (l *Ledger) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		return nil
	}
	snap, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("ledger open: %w", err)
	}
	snapshot.Reshape(&snap)
	snapshot.Recompute(&snap)
	l.snap = snap
	l.open = true
	l.log.WithField("sessions", len(snap.Sessions)).
		WithField("withdrawals", len(snap.Withdrawals)).
		WithField("boosts", len(snap.Boosts)).
		Info("ledger opened")
	return nil
}

// Update runs fn against the snapshot under the writer lock, recomputes the
// derived stats, and persists the result. If fn returns an error nothing is
// saved. If the save fails the in-memory snapshot is rolled back to its
// pre-mutation state and the caller must re-issue the request; there is no
// retry.
func (l *Ledger) Update(ctx context.Context, fn func(*snapshot.Snapshot) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return fmt.Errorf("ledger: not open")
	}

	before := l.snap.Clone()
	if err := fn(&l.snap); err != nil {
		l.snap = before
		return err
	}
	snapshot.Recompute(&l.snap)

	start := time.Now()
	err := l.store.Save(ctx, l.snap)
	metrics.RecordSnapshotSave(time.Since(start), err)
	if err != nil {
		l.snap = before
		l.log.WithError(err).Error("snapshot save failed; mutation discarded")
		return err
	}
	return nil
}

// View runs fn against the snapshot under the lock without persisting.
func (l *Ledger) View(_ context.Context, fn func(*snapshot.Snapshot) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return fmt.Errorf("ledger: not open")
	}
	return fn(&l.snap)
}

// Close performs a final save and marks the ledger closed. Update and View
// fail afterwards.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	l.open = false
	snapshot.Recompute(&l.snap)
	if err := l.store.Save(ctx, l.snap); err != nil {
		return fmt.Errorf("ledger close: %w", err)
	}
	return nil
}
