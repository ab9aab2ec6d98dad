package audio

import (
	"sync"
	"time"

	"voicenotes/internal/errs"
)

// PlayerState is a positional snapshot of the active playback session.
type PlayerState struct {
	NoteID     int64 `json:"note_id"`
	Playing    bool  `json:"playing"`
	PositionMS int64 `json:"position_ms"`
	DurationMS int64 `json:"duration_ms"`
}

// Backend is the OS playback resource behind the player. The default
// implementation shells out to ffplay; tests substitute a fake.
type Backend interface {
	Play(path string) (duration time.Duration, err error)
	Pause() error
	Resume() error
	Seek(position time.Duration) error
	Stop() error
}

// Player owns the single playback resource and polls its position on a
// fixed interval while playing. Starting a new file stops the previous one.
type Player struct {
	backend Backend

	mu        sync.Mutex
	state     PlayerState
	startedAt time.Time
	elapsed   time.Duration // accumulated across pauses
	stopPoll  chan struct{}
}

const pollInterval = 100 * time.Millisecond

func NewPlayer(backend Backend) *Player {
	return &Player{backend: backend}
}

// Play starts playback of a note's audio file, stopping any current one.
func (p *Player) Play(noteID int64, path string) error {
	p.Stop()

	duration, err := p.backend.Play(path)
	if err != nil {
		return errs.Wrap(errs.KindUnknown, "failed to play audio", err)
	}

	p.mu.Lock()
	p.state = PlayerState{NoteID: noteID, Playing: true, DurationMS: duration.Milliseconds()}
	p.startedAt = time.Now()
	p.elapsed = 0
	p.stopPoll = make(chan struct{})
	go p.poll(p.stopPoll)
	p.mu.Unlock()
	return nil
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Playing {
		return nil
	}
	if err := p.backend.Pause(); err != nil {
		return err
	}
	p.elapsed += time.Since(p.startedAt)
	p.state.Playing = false
	p.state.PositionMS = p.elapsed.Milliseconds()
	p.cancelPoll()
	return nil
}

func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Playing || p.state.NoteID == 0 {
		return nil
	}
	if err := p.backend.Resume(); err != nil {
		return err
	}
	p.startedAt = time.Now()
	p.state.Playing = true
	p.stopPoll = make(chan struct{})
	go p.poll(p.stopPoll)
	return nil
}

// Seek jumps the active session to the given position. The position is
// clamped to the known duration; paused sessions stay paused.
func (p *Player) Seek(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.NoteID == 0 {
		return errs.New(errs.KindNotFound, "no active playback")
	}

	if position < 0 {
		position = 0
	}
	if max := time.Duration(p.state.DurationMS) * time.Millisecond; max > 0 && position > max {
		position = max
	}

	if err := p.backend.Seek(position); err != nil {
		return errs.Wrap(errs.KindUnknown, "failed to seek", err)
	}

	p.elapsed = position
	p.startedAt = time.Now()
	p.state.PositionMS = position.Milliseconds()
	return nil
}

// Stop releases the playback resource and resets the state.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.NoteID == 0 {
		return
	}
	p.backend.Stop()
	p.cancelPoll()
	p.state = PlayerState{}
	p.elapsed = 0
}

// State returns the current playback snapshot.
func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.state
	if st.Playing {
		st.PositionMS = (p.elapsed + time.Since(p.startedAt)).Milliseconds()
	}
	return st
}

func (p *Player) cancelPoll() {
	if p.stopPoll != nil {
		close(p.stopPoll)
		p.stopPoll = nil
	}
}

// poll advances the position while playing and releases the session once
// the known duration is exhausted. Runs only between Play/Resume and
// Pause/Stop.
func (p *Player) poll(done chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.mu.Lock()
			if !p.state.Playing {
				p.mu.Unlock()
				return
			}
			pos := p.elapsed + time.Since(p.startedAt)
			p.state.PositionMS = pos.Milliseconds()
			finished := p.state.DurationMS > 0 && pos.Milliseconds() >= p.state.DurationMS
			p.mu.Unlock()

			if finished {
				p.Stop()
				return
			}
		}
	}
}
