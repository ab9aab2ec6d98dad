// Package notes drives a note from "just recorded" to a terminal processing
// outcome and supports manual retry.
package notes

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voicenotes/internal/ai"
	"voicenotes/internal/errs"
	"voicenotes/internal/models"
	"voicenotes/internal/prefs"
	"voicenotes/internal/store"
)

// AudioAnalyzer is the audio-capable provider contract.
type AudioAnalyzer interface {
	ai.Analyzer
	Transcribe(ctx context.Context, audio ai.Audio, apiKey string) (string, error)
}

// Service is the note lifecycle coordinator.
type Service struct {
	store  *store.Store
	prefs  *prefs.Store
	gemini AudioAnalyzer
	openai ai.Summarizer

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewService(st *store.Store, pr *prefs.Store, gemini AudioAnalyzer, openai ai.Summarizer) *Service {
	return &Service{
		store:  st,
		prefs:  pr,
		gemini: gemini,
		openai: openai,
		locks:  make(map[int64]*sync.Mutex),
	}
}

// lockNote serializes concurrent processing of the same note id.
func (s *Service) lockNote(id int64) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Create stores a fresh PROCESSING note for a finished recording and runs
// the processing pipeline. The returned id is valid even when processing
// fails: the note stays in the store with its error status.
func (s *Service) Create(ctx context.Context, audioPath string) (int64, error) {
	id, err := s.store.Insert(ctx, models.Note{
		AudioPath: audioPath,
		Timestamp: time.Now(),
		Status:    models.StatusProcessing,
	})
	if err != nil {
		return 0, err
	}
	return id, s.Process(ctx, id)
}

// Retry re-runs processing for a DRAFT or FAILED note. A note whose audio
// file is gone fails immediately without touching the network.
func (s *Service) Retry(ctx context.Context, id int64) error {
	unlock := s.lockNote(id)
	defer unlock()

	note, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := os.Stat(note.AudioPath); err != nil {
		if uerr := s.store.UpdateStatus(ctx, id, models.StatusFailed); uerr != nil {
			return uerr
		}
		return errs.New(errs.KindNotFound, "audio file not found")
	}

	if err := s.store.UpdateStatus(ctx, id, models.StatusProcessing); err != nil {
		return err
	}
	return s.process(ctx, id)
}

// Process runs the pipeline for a note already in PROCESSING state.
func (s *Service) Process(ctx context.Context, id int64) error {
	unlock := s.lockNote(id)
	defer unlock()
	return s.process(ctx, id)
}

// process performs the credential lookup, provider round trips and the final
// atomic write. On any failure the status lands at DRAFT (transport fault)
// or FAILED before the error is returned, so a note is never left stuck at
// PROCESSING.
func (s *Service) process(ctx context.Context, id int64) error {
	note, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	analysis, err := s.analyze(ctx, note.AudioPath)
	if err != nil {
		status := models.StatusFailed
		if errs.IsTransient(err) {
			status = models.StatusDraft
		}
		if uerr := s.store.UpdateStatus(ctx, id, status); uerr != nil {
			return fmt.Errorf("failed to record status after %v: %w", err, uerr)
		}
		return err
	}

	note.Title = analysis.Title
	note.Transcript = analysis.Transcript
	note.Summary = analysis.Summary
	note.Status = models.StatusSynced
	return s.store.Update(ctx, *note)
}

func (s *Service) analyze(ctx context.Context, audioPath string) (models.Analysis, error) {
	p := s.prefs.Preferences()
	apiKey := p.KeyFor(p.SelectedProvider)
	if strings.TrimSpace(apiKey) == "" {
		return models.Analysis{}, errs.ErrMissingCredential
	}

	audioBytes, err := os.ReadFile(audioPath)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("failed to read audio file: %w", err)
	}
	audio := ai.Audio{
		Base64:   base64.StdEncoding.EncodeToString(audioBytes),
		MIMEType: MIMEType(audioPath),
	}

	switch p.SelectedProvider {
	case models.ProviderOpenAI:
		// OpenAI takes no audio input; the transcription leg always runs
		// through Gemini and needs its credential too.
		if strings.TrimSpace(p.GeminiAPIKey) == "" {
			return models.Analysis{}, errs.New(errs.KindMissingCredential,
				"openAI provider requires a Gemini api key for transcription")
		}
		transcript, err := s.gemini.Transcribe(ctx, audio, p.GeminiAPIKey)
		if err != nil {
			return models.Analysis{}, err
		}
		return s.openai.Summarize(ctx, transcript, apiKey)
	default:
		return s.gemini.AnalyzeAudio(ctx, audio, apiKey)
	}
}

// UpdateTitle renames a note.
func (s *Service) UpdateTitle(ctx context.Context, id int64, title string) error {
	if err := s.store.UpdateTitle(ctx, id, title); err != nil {
		return errs.Wrap(errs.KindUpdateFailed, "failed to update title", err)
	}
	return nil
}

// Delete removes the note row and its audio file. The row goes first so a
// file that cannot be removed never resurrects the note.
func (s *Service) Delete(ctx context.Context, id int64) error {
	note, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return errs.Wrap(errs.KindDeleteFailed, "failed to delete note", err)
	}

	// The lock entry goes with the note; a goroutine already waiting on it
	// keeps its own reference.
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
	if note.AudioPath != "" {
		if err := os.Remove(note.AudioPath); err != nil && !os.IsNotExist(err) {
			return errs.Wrap(errs.KindDeleteFailed, "failed to delete audio file", err)
		}
	}
	return nil
}

// MIMEType resolves the transport MIME type from the file extension, with a
// fixed fallback for anything unrecognized.
func MIMEType(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "mp3":
		return "audio/mp3"
	case "m4a":
		return "audio/mp4"
	case "wav":
		return "audio/wav"
	case "aac":
		return "audio/aac"
	case "ogg":
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}
