package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/minedeck/minedeck-server/internal/app/domain/session"
	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/internal/app/storage"
	"github.com/minedeck/minedeck-server/internal/app/storage/memory"
)

func TestUpdate_Persists(t *testing.T) {
	store := memory.New()
	l := New(store, nil)
	ctx := context.Background()
	if err := l.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	err := l.Update(ctx, func(snap *snapshot.Snapshot) error {
		snap.Sessions["a"] = session.Session{ID: "a", MinedTokens: 3}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	saved, ok := store.Saved()
	if !ok {
		t.Fatal("nothing persisted")
	}
	if saved.Sessions["a"].MinedTokens != 3 {
		t.Fatalf("persisted snapshot wrong: %+v", saved.Sessions["a"])
	}
	if saved.Stats.TotalMined != 3 || saved.Stats.ActiveSessions != 1 {
		t.Fatalf("stats not recomputed before save: %+v", saved.Stats)
	}
}

func TestUpdate_FnErrorDiscardsMutation(t *testing.T) {
	store := memory.New()
	l := New(store, nil)
	ctx := context.Background()
	if err := l.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	boom := errors.New("boom")
	err := l.Update(ctx, func(snap *snapshot.Snapshot) error {
		snap.Sessions["a"] = session.Session{ID: "a"}
		return boom
	})
	if err != boom {
		t.Fatalf("want fn error, got %v", err)
	}

	if _, ok := store.Saved(); ok {
		t.Fatal("failed update must not persist")
	}
	err = l.View(ctx, func(snap *snapshot.Snapshot) error {
		if _, ok := snap.Sessions["a"]; ok {
			t.Fatal("mutation survived fn error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestUpdate_SaveFailureRollsBack(t *testing.T) {
	store := memory.New()
	l := New(store, nil)
	ctx := context.Background()
	if err := l.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	store.FailNextSave = true
	err := l.Update(ctx, func(snap *snapshot.Snapshot) error {
		snap.Sessions["a"] = session.Session{ID: "a", MinedTokens: 9}
		return nil
	})
	if !errors.Is(err, storage.ErrPersistence) {
		t.Fatalf("want ErrPersistence, got %v", err)
	}

	// The in-memory state must match what a caller can re-read, not the
	// unsaved mutation.
	err = l.View(ctx, func(snap *snapshot.Snapshot) error {
		if _, ok := snap.Sessions["a"]; ok {
			t.Fatal("mutation survived save failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	// The next update goes through normally.
	err = l.Update(ctx, func(snap *snapshot.Snapshot) error {
		snap.Sessions["b"] = session.Session{ID: "b"}
		return nil
	})
	if err != nil {
		t.Fatalf("update after failed save: %v", err)
	}
}

func TestOpen_RequiredBeforeUse(t *testing.T) {
	l := New(memory.New(), nil)
	ctx := context.Background()

	if err := l.Update(ctx, func(*snapshot.Snapshot) error { return nil }); err == nil {
		t.Fatal("update before open should fail")
	}
	if err := l.View(ctx, func(*snapshot.Snapshot) error { return nil }); err == nil {
		t.Fatal("view before open should fail")
	}
}

func TestClose_FinalSaveAndSeal(t *testing.T) {
	store := memory.New()
	l := New(store, nil)
	ctx := context.Background()
	if err := l.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	err := l.Update(ctx, func(snap *snapshot.Snapshot) error {
		snap.Sessions["a"] = session.Session{ID: "a"}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := l.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := l.Update(ctx, func(*snapshot.Snapshot) error { return nil }); err == nil {
		t.Fatal("update after close should fail")
	}

	saved, ok := store.Saved()
	if !ok || len(saved.Sessions) != 1 {
		t.Fatalf("final save missing: %v %d", ok, len(saved.Sessions))
	}
}
