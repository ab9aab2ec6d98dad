// Package audio owns the recording and playback resources and the audio
// cache directory.
package audio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"voicenotes/internal/errs"
)

// Recorder captures microphone audio to a file via an ffmpeg subprocess.
// A single OS recording resource backs it, so at most one session may be
// active; StartRecording fails while one is in flight.
type Recorder struct {
	cacheDir string
	input    string // ffmpeg input device, e.g. "default"
	format   string // ffmpeg input format, e.g. "alsa" or "avfoundation"

	mu      sync.Mutex
	proc    *exec.Cmd
	outPath string
}

func NewRecorder(cacheDir, format, input string) *Recorder {
	if format == "" {
		format = "alsa"
	}
	if input == "" {
		input = "default"
	}
	return &Recorder{cacheDir: cacheDir, format: format, input: input}
}

// CheckFFmpeg verifies ffmpeg is installed and reachable.
func (r *Recorder) CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return nil
}

// StartRecording begins capturing into a deterministically named file in
// the cache directory and returns its path.
func (r *Recorder) StartRecording() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc != nil {
		return "", errs.ErrRecordingActive
	}
	if err := r.CheckFFmpeg(); err != nil {
		return "", errs.Wrap(errs.KindRecordingStart, "cannot start recording", err)
	}
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return "", errs.Wrap(errs.KindRecordingStart, "cannot create cache directory", err)
	}

	outPath := filepath.Join(r.cacheDir, AudioFileName(time.Now()))
	cmd := exec.Command("ffmpeg",
		"-f", r.format,
		"-i", r.input,
		"-c:a", "aac",
		"-y", outPath,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return "", errs.Wrap(errs.KindRecordingStart, "failed to start ffmpeg", err)
	}

	r.proc = cmd
	r.outPath = outPath
	return outPath, nil
}

// StopRecording signals ffmpeg to finalize the file, waits for it to exit
// and returns the recorded path.
func (r *Recorder) StopRecording() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc == nil {
		return "", errs.ErrNoRecording
	}

	// SIGINT lets ffmpeg write the container trailer.
	if err := r.proc.Process.Signal(syscall.SIGINT); err != nil {
		r.proc.Process.Kill()
	}
	r.proc.Wait()

	path := r.outPath
	r.proc = nil
	r.outPath = ""

	if _, err := os.Stat(path); err != nil {
		return "", errs.Wrap(errs.KindRecordingStop, "recording produced no file", err)
	}
	return path, nil
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proc != nil
}

// AudioFileName derives the cache file name from the capture time.
func AudioFileName(t time.Time) string {
	return fmt.Sprintf("audio_%d.m4a", t.UnixMilli())
}
