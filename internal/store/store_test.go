package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"voicenotes/internal/errs"
	"voicenotes/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testNote() models.Note {
	return models.Note{
		AudioPath: "/tmp/audio_1.m4a",
		Timestamp: time.Now(),
		Status:    models.StatusProcessing,
	}
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testNote())
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	note, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, note.ID)
	assert.Equal(t, models.StatusProcessing, note.Status)
	assert.Empty(t, note.Title)
	assert.Empty(t, note.Transcript)
	assert.Empty(t, note.Summary)
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.Classify(err))
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testNote()
	older.Timestamp = time.Now().Add(-time.Hour)
	newer := testNote()

	olderID, err := s.Insert(ctx, older)
	require.NoError(t, err)
	newerID, err := s.Insert(ctx, newer)
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newerID, list[0].ID)
	assert.Equal(t, olderID, list[1].ID)
}

func TestUpdateOverwritesAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testNote())
	require.NoError(t, err)

	note, err := s.Get(ctx, id)
	require.NoError(t, err)
	note.Title = "Groceries"
	note.Transcript = "Buy milk and eggs"
	note.Summary = "Buy milk and eggs."
	note.Status = models.StatusSynced
	require.NoError(t, s.Update(ctx, *note))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, "Buy milk and eggs", got.Transcript)
	assert.Equal(t, "Buy milk and eggs.", got.Summary)
	assert.Equal(t, models.StatusSynced, got.Status)
}

func TestUpdateTitleAndStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testNote())
	require.NoError(t, err)

	require.NoError(t, s.UpdateTitle(ctx, id, "Renamed"))
	require.NoError(t, s.UpdateStatus(ctx, id, models.StatusDraft))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, models.StatusDraft, got.Status)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testNote())
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id))

	_, err = s.Get(ctx, id)
	assert.Equal(t, errs.KindNotFound, errs.Classify(err))
}

func TestSubscribeEmitsOnMutation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := s.Subscribe(ctx)
	defer s.Unsubscribe(sub)

	// Initial snapshot arrives without any mutation.
	initial := waitForSnapshot(t, sub)
	assert.Empty(t, initial)

	id, err := s.Insert(ctx, testNote())
	require.NoError(t, err)

	afterInsert := waitForSnapshot(t, sub)
	require.Len(t, afterInsert, 1)
	assert.Equal(t, id, afterInsert[0].ID)

	require.NoError(t, s.UpdateStatus(ctx, id, models.StatusSynced))
	afterUpdate := waitForSnapshot(t, sub)
	require.Len(t, afterUpdate, 1)
	assert.Equal(t, models.StatusSynced, afterUpdate[0].Status)

	require.NoError(t, s.Delete(ctx, id))
	afterDelete := waitForSnapshot(t, sub)
	assert.Empty(t, afterDelete)
}

func TestSubscribeCoalescesWhenSlow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := s.Subscribe(ctx)
	defer s.Unsubscribe(sub)
	waitForSnapshot(t, sub)

	// Three mutations with nobody reading must not block the writers.
	for i := 0; i < 3; i++ {
		_, err := s.Insert(ctx, testNote())
		require.NoError(t, err)
	}

	// The latest snapshot wins.
	last := waitForSnapshot(t, sub)
	assert.Len(t, last, 3)
}

// The snapshot emission keyed to a mutation must not ride on the mutating
// caller's context: a request that ends right after its commit still has to
// reach subscribers.
func TestMutationEmitsAfterCallerContextEnds(t *testing.T) {
	s := newTestStore(t)

	sub := s.Subscribe(context.Background())
	defer s.Unsubscribe(sub)
	waitForSnapshot(t, sub)

	ctx, cancel := context.WithCancel(context.Background())
	id, err := s.Insert(ctx, testNote())
	require.NoError(t, err)
	cancel()

	snap := waitForSnapshot(t, sub)
	require.Len(t, snap, 1)
	assert.Equal(t, id, snap[0].ID)
}

func waitForSnapshot(t *testing.T, sub <-chan []models.Note) []models.Note {
	t.Helper()
	select {
	case snap := <-sub:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

// A database created by an old version without title/status columns must
// come out of New with both columns present and old rows marked SYNCED.
func TestMigrationFromV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	conn, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = conn.Exec(`CREATE TABLE notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transcript TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		audio_path TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO notes (transcript, summary, audio_path, timestamp) VALUES (?, ?, ?, ?)`,
		"old words", "old summary", "/tmp/audio_0.m4a", time.Now().UnixMilli())
	require.NoError(t, err)
	_, err = conn.Exec(`PRAGMA user_version = 1`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	s, err := New(path)
	require.NoError(t, err)
	defer s.Close()

	note, err := s.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "", note.Title)
	assert.Equal(t, "old words", note.Transcript)
	assert.Equal(t, models.StatusSynced, note.Status)
}

// An unmigratable schema falls back to recreating the notes table.
func TestMigrationFallsBackToRecreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.db")

	conn, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	// Claims v2 but already has a status column: the v3 ALTER will fail.
	_, err = conn.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, status TEXT)`)
	require.NoError(t, err)
	_, err = conn.Exec(`PRAGMA user_version = 2`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	s, err := New(path)
	require.NoError(t, err)
	defer s.Close()

	// The recreated table accepts the full current schema.
	id, err := s.Insert(context.Background(), testNote())
	require.NoError(t, err)
	note, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, note.Status)
}
