package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/minedeck/minedeck-server/internal/app/domain/session"
	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/internal/app/storage"
)

func TestLoad_EmptyStore(t *testing.T) {
	s := New()
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Sessions == nil || len(snap.Sessions) != 0 {
		t.Fatalf("empty store should load a shaped empty snapshot: %+v", snap)
	}
}

func TestSaveLoad_Isolated(t *testing.T) {
	s := New()
	ctx := context.Background()

	snap := snapshot.New()
	snap.Sessions["a"] = session.Session{ID: "a", MinedTokens: 1}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the caller's copy after save must not leak into the store.
	snap.Sessions["b"] = session.Session{ID: "b"}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Sessions) != 1 {
		t.Fatalf("store shares state with caller: %d sessions", len(loaded.Sessions))
	}
}

func TestFailNextSave(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.FailNextSave = true
	err := s.Save(ctx, snapshot.New())
	if !errors.Is(err, storage.ErrPersistence) {
		t.Fatalf("want ErrPersistence, got %v", err)
	}
	if _, ok := s.Saved(); ok {
		t.Fatal("failed save must not persist")
	}

	// The failure is one-shot.
	if err := s.Save(ctx, snapshot.New()); err != nil {
		t.Fatalf("save after failure: %v", err)
	}
	if _, ok := s.Saved(); !ok {
		t.Fatal("second save not persisted")
	}
}
