package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestCleanOldFiles(t *testing.T) {
	dir := t.TempDir()

	old := touch(t, dir, "audio_1.m4a", 31*24*time.Hour)
	fresh := touch(t, dir, "audio_2.m4a", time.Hour)
	unrelated := touch(t, dir, "notes.txt", 90*24*time.Hour)

	deleted := CleanOldFiles(dir)
	assert.Equal(t, 1, deleted)

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "expired recording must be deleted")
	_, err = os.Stat(fresh)
	assert.NoError(t, err, "recent recording must survive")
	_, err = os.Stat(unrelated)
	assert.NoError(t, err, "files outside the naming scheme are never touched")
}

func TestCleanOldFilesMissingDir(t *testing.T) {
	assert.Zero(t, CleanOldFiles(filepath.Join(t.TempDir(), "nope")))
}

func TestAudioFileName(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	assert.Equal(t, "audio_1700000000000.m4a", AudioFileName(at))
	// Deterministic: same capture time, same name.
	assert.Equal(t, AudioFileName(at), AudioFileName(at))
}
