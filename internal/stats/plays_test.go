package stats

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"voicenotes/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRecordAndGet(t *testing.T) {
	p := New(newTestStore(t))
	defer p.Shutdown()

	assert.Zero(t, p.GetPlays(1))
	p.RecordPlay(1)
	p.RecordPlay(1)
	p.RecordPlay(2)
	assert.Equal(t, int64(2), p.GetPlays(1))
	assert.Equal(t, int64(1), p.GetPlays(2))
}

func TestCountsSurviveRestart(t *testing.T) {
	st := newTestStore(t)

	p := New(st)
	p.RecordPlay(5)
	p.RecordPlay(5)
	p.Shutdown() // flushes

	reloaded := New(st)
	defer reloaded.Shutdown()
	assert.Equal(t, int64(2), reloaded.GetPlays(5))
}

func TestForget(t *testing.T) {
	p := New(newTestStore(t))
	defer p.Shutdown()

	p.RecordPlay(9)
	p.Forget(9)
	assert.Zero(t, p.GetPlays(9))
}
