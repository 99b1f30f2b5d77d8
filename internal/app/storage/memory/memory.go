// Package memory implements the snapshot store in process memory. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
package memory

import (
	"context"
	"sync"

	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/internal/app/storage"
)

// Store keeps the last saved snapshot in memory.
type Store struct {
	mu    sync.Mutex
	snap  snapshot.Snapshot
	saved bool

	// FailNextSave makes the next Save return ErrPersistence. Used by tests
	// to exercise the discard-on-save-failure path.
	FailNextSave bool
}

var _ storage.SnapshotStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) Load(_ context.Context) (snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return snapshot.New(), nil
	}
	return s.snap.Clone(), nil
}

func (s *Store) Save(_ context.Context, snap snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNextSave {
		s.FailNextSave = false
		return storage.ErrPersistence
	}
	s.snap = snap.Clone()
	s.saved = true
	return nil
}

// Saved reports whether a snapshot has been persisted, and returns a copy of
// the latest one.
func (s *Store) Saved() (snapshot.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return snapshot.Snapshot{}, false
	}
	return s.snap.Clone(), true
}
