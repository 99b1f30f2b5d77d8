package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minedeck/minedeck-server/internal/app/domain/session"
	"github.com/minedeck/minedeck-server/internal/app/snapshot"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "store.json")
	s, err := New(path, nil)
	require.NoError(t, err)
	return s, path
}

func TestLoad_MissingFile(t *testing.T) {
	s, _ := newTestStore(t)

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Sessions)
	assert.NotNil(t, snap.Sessions)
	assert.NotNil(t, snap.Withdrawals)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	snap := snapshot.New()
	snap.Sessions["a"] = session.Session{
		ID:             "a",
		MinedTokens:    12.5,
		MiningSpeed:    session.DefaultMiningSpeed,
		CompletedTasks: []string{"boost-x"},
	}
	snapshot.Recompute(&snap)
	require.NoError(t, s.Save(ctx, snap))

	// No temp file remains after a successful save.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	loadedSess := loaded.Sessions["a"]
	assert.Equal(t, 12.5, loadedSess.MinedTokens)
	assert.True(t, loadedSess.HasTask("boost-x"))
	assert.Equal(t, 12.5, loaded.Stats.TotalMined)
}

func TestSave_ReplacesAtomically(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	first := snapshot.New()
	first.Sessions["a"] = session.Session{ID: "a"}
	require.NoError(t, s.Save(ctx, first))

	second := snapshot.New()
	second.Sessions["b"] = session.Session{ID: "b"}
	require.NoError(t, s.Save(ctx, second))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Sessions, 1)
	assert.Contains(t, loaded.Sessions, "b")

	// Only the live file is left in the directory.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_CorruptFileQuarantined(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(path, []byte(`{"sessions": {truncated`), 0o640))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Sessions)

	// The bad file was moved aside, not deleted.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	matches, err := filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	kept, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(kept), "truncated")

	// A save after recovery starts a fresh live file.
	require.NoError(t, s.Save(ctx, snapshot.New()))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoad_ReshapesLegacyFile(t *testing.T) {
	s, path := newTestStore(t)

	legacy := `{"sessions":{"a":{"id":"a","minedTokens":4}}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o640))

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	sess := loaded.Sessions["a"]
	assert.Equal(t, float64(session.DefaultMiningSpeed), sess.MiningSpeed)
	assert.NotNil(t, sess.CompletedTasks)
	assert.NotNil(t, loaded.Withdrawals)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("", nil)
	require.Error(t, err)
}
