// Package file implements the snapshot store against a single JSON file with
// atomic-replace write semantics.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/internal/app/storage"
	"github.com/minedeck/minedeck-server/pkg/logger"
)

// Store persists the snapshot to one file. Writes go to a temporary file in
// the same directory and are renamed over the live file, so a partial write
// is never visible to a subsequent Load.
type Store struct {
	path string
	log  *logger.Logger
}

var _ storage.SnapshotStore = (*Store)(nil)

// New creates a file-backed store. The parent directory is created if needed.
func New(path string, log *logger.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("file store: path is required")
	}
	if log == nil {
		log = logger.NewDefault("storage")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("file store: create dir: %w", err)
		}
	}
	return &Store{path: path, log: log}, nil
}

// Load reads the live snapshot file. A missing file yields an empty
// default-shaped snapshot. An unreadable or corrupt file also yields the
// empty snapshot (fail-open, availability over durability), but the bad file
// is quarantined with a .corrupt suffix instead of being silently replaced.
func (s *Store) Load(_ context.Context) (snapshot.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return snapshot.New(), nil
	}
	if err != nil {
		s.log.WithError(err).Error("snapshot unreadable; starting from empty state")
		s.quarantine()
		return snapshot.New(), nil
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.WithError(err).Error("snapshot corrupt; starting from empty state")
		s.quarantine()
		return snapshot.New(), nil
	}

	snapshot.Reshape(&snap)
	return snap, nil
}

// Save serializes the snapshot to a temporary file, syncs it, and atomically
// renames it over the live file.
func (s *Store) Save(_ context.Context, snap snapshot.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", storage.ErrPersistence, err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", storage.ErrPersistence, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: write: %v", storage.ErrPersistence, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: sync: %v", storage.ErrPersistence, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: close: %v", storage.ErrPersistence, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: rename: %v", storage.ErrPersistence, err)
	}
	return nil
}

// quarantine moves a bad snapshot file aside so fail-open recovery does not
// destroy whatever data it still holds.
func (s *Store) quarantine() {
	aside := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("failed to quarantine corrupt snapshot")
		}
		return
	}
	s.log.WithField("path", aside).Warn("corrupt snapshot quarantined")
}
