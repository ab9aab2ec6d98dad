package audio

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Retention window for recorded audio in the cache directory.
const keepFilesFor = 30 * 24 * time.Hour

// CleanOldFiles deletes recorded audio files older than the retention
// window. Only files matching the recorder's naming scheme are touched.
func CleanOldFiles(cacheDir string) int {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return 0
	}

	deleted := 0
	cutoff := time.Now().Add(-keepFilesFor)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "audio_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(cacheDir, entry.Name())); err == nil {
				deleted++
			}
		}
	}
	if deleted > 0 {
		log.Printf("Cleaned up %d old audio files", deleted)
	}
	return deleted
}

// SweepLoop runs CleanOldFiles immediately and then once a day until stop
// is closed.
func SweepLoop(cacheDir string, stop <-chan struct{}) {
	CleanOldFiles(cacheDir)
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			CleanOldFiles(cacheDir)
		}
	}
}
