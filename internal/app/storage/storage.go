// Package storage defines the persistence contract for the ledger snapshot.
package storage

import (
	"context"
	"errors"

	"github.com/minedeck/minedeck-server/internal/app/snapshot"
)

// ErrPersistence wraps failures to durably write the snapshot. The triggering
// operation fails; nothing is retried or queued.
var ErrPersistence = errors.New("snapshot persistence failed")

// SnapshotStore loads and saves the whole-store snapshot as one unit.
//
// Load never fails on a missing or unreadable backing file: implementations
// substitute a default-shaped empty snapshot instead (fail-open). Save must
// be atomic with respect to concurrent loads: a crash mid-save leaves the
// previous snapshot intact.
type SnapshotStore interface {
	Load(ctx context.Context) (snapshot.Snapshot, error)
	Save(ctx context.Context, snap snapshot.Snapshot) error
}
