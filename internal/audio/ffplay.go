package audio

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FFPlayBackend plays audio through an ffplay subprocess. Pause and resume
// map to SIGSTOP/SIGCONT since ffplay has no control channel in -nodisp
// mode.
type FFPlayBackend struct {
	cmd  *exec.Cmd
	path string
}

func NewFFPlayBackend() *FFPlayBackend { return &FFPlayBackend{} }

func (b *FFPlayBackend) Play(path string) (time.Duration, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return 0, fmt.Errorf("ffplay not found in PATH: %w", err)
	}

	duration := probeDuration(path)

	cmd := exec.Command("ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", path)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start ffplay: %w", err)
	}
	b.cmd = cmd
	b.path = path
	go cmd.Wait()
	return duration, nil
}

// Seek restarts ffplay at the given offset; there is no control channel to
// reposition a running process.
func (b *FFPlayBackend) Seek(position time.Duration) error {
	if b.cmd == nil || b.cmd.Process == nil {
		return fmt.Errorf("no active playback")
	}
	b.cmd.Process.Kill()

	cmd := exec.Command("ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet",
		"-ss", fmt.Sprintf("%.3f", position.Seconds()), b.path)
	if err := cmd.Start(); err != nil {
		b.cmd = nil
		return fmt.Errorf("failed to restart ffplay: %w", err)
	}
	b.cmd = cmd
	go cmd.Wait()
	return nil
}

func (b *FFPlayBackend) Pause() error {
	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}
	return b.cmd.Process.Signal(syscall.SIGSTOP)
}

func (b *FFPlayBackend) Resume() error {
	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}
	return b.cmd.Process.Signal(syscall.SIGCONT)
}

func (b *FFPlayBackend) Stop() error {
	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}
	err := b.cmd.Process.Kill()
	b.cmd = nil
	return err
}

// probeDuration asks ffprobe for the file duration; zero when unavailable.
func probeDuration(path string) time.Duration {
	out, err := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
