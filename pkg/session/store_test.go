package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "reports"), "scan")
	require.NoError(t, err)
	return store
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sc := populated()
	key := store.NewKey(time.Date(2026, 3, 1, 10, 4, 5, 0, time.UTC))
	assert.Equal(t, "scan-20260301-100405", key)

	path, err := store.SaveSnapshot(ctx, key, sc.Snapshot())
	require.NoError(t, err)
	assert.FileExists(t, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	snap, err := store.LoadSnapshot(ctx, key)
	require.NoError(t, err)
	assert.Len(t, snap.Commands, 3)
	assert.Equal(t, "SQL injection in /login", snap.FinalAnswer)

	keys, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)
}

func TestStore_LoadMissing(t *testing.T) {
	_, err := newTestStore(t).LoadSnapshot(context.Background(), "scan-nope")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestStore_InvalidKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../etc", "a/b", "a\\b", "a\x00b"} {
		t.Run(key, func(t *testing.T) {
			_, err := store.SaveSnapshot(ctx, key, Snapshot{})
			assert.ErrorIs(t, err, ErrInvalidKey)
			assert.ErrorIs(t, store.AppendCommand(ctx, key, CommandRecord{}), ErrInvalidKey)
		})
	}
}

func TestStore_Journal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AppendCommand(ctx, "scan-1", CommandRecord{ToolName: "execute_command", Command: "id", Success: true}))
	require.NoError(t, store.AppendCommand(ctx, "scan-1", CommandRecord{ToolName: "execute_command", Command: "whoami"}))

	f, err := os.OpenFile(filepath.Join(store.Dir(), "scan-1.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := store.LoadJournal("scan-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "whoami", records[1].Command)

	empty, err := store.LoadJournal("scan-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.SaveSnapshot(ctx, "scan-1", New("t", "").Snapshot())
	require.NoError(t, err)
	require.NoError(t, store.AppendCommand(ctx, "scan-1", CommandRecord{Command: "id"}))

	require.NoError(t, store.Delete("scan-1"))
	require.NoError(t, store.Delete("scan-1"))

	keys, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	_, err := store.SaveSnapshot(ctx, "scan-old", New("t", "").Snapshot())
	require.NoError(t, err)
	_, err = store.SaveSnapshot(ctx, "scan-new", New("t", "").Snapshot())
	require.NoError(t, err)
	require.NoError(t, store.AppendCommand(ctx, "scan-orphan", CommandRecord{Command: "id"}))

	old := now.Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.SnapshotPath("scan-old"), old, old))
	require.NoError(t, os.Chtimes(filepath.Join(store.Dir(), "scan-orphan.jsonl"), old, old))

	stats, err := store.Prune(24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, PruneStats{Scanned: 3, Deleted: 2, Kept: 1}, stats)

	keys, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"scan-new"}, keys)
}
