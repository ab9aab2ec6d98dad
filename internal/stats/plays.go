// Package stats tracks how often each note's audio has been played.
package stats

import (
	"sync"
	"time"

	"voicenotes/internal/store"
)

// Plays keeps per-note play counts in memory and flushes them to the store
// on an interval and at shutdown.
type Plays struct {
	mu     sync.RWMutex
	counts map[int64]int64
	store  *store.Store
	stop   chan struct{}
}

func New(st *store.Store) *Plays {
	p := &Plays{
		counts: make(map[int64]int64),
		store:  st,
		stop:   make(chan struct{}),
	}

	p.loadFromStore()
	go p.persistLoop()

	return p
}

func (p *Plays) loadFromStore() {
	counts, err := p.store.GetAllPlays()
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for noteID, count := range counts {
		p.counts[noteID] = count
	}
}

func (p *Plays) persistLoop() {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.persist()
		}
	}
}

func (p *Plays) persist() {
	p.mu.RLock()
	countsCopy := make(map[int64]int64, len(p.counts))
	for k, v := range p.counts {
		countsCopy[k] = v
	}
	p.mu.RUnlock()

	p.store.SavePlays(countsCopy)
}

// RecordPlay counts one playback of a note.
func (p *Plays) RecordPlay(noteID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[noteID]++
}

// GetPlays returns the play count for a note.
func (p *Plays) GetPlays(noteID int64) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counts[noteID]
}

// Forget drops the counter for a deleted note.
func (p *Plays) Forget(noteID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.counts, noteID)
}

// Shutdown persists counts and stops the flush loop.
func (p *Plays) Shutdown() {
	close(p.stop)
	p.persist()
}
