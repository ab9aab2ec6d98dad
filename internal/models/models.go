package models

import "time"

// NoteStatus is the lifecycle stage of a note's AI processing.
type NoteStatus string

const (
	StatusProcessing NoteStatus = "PROCESSING" // AI processing in flight
	StatusSynced     NoteStatus = "SYNCED"     // fully processed and stored
	StatusDraft      NoteStatus = "DRAFT"      // network failed, likely to succeed on retry
	StatusFailed     NoteStatus = "FAILED"     // processing failed, manual retry required
)

// Valid reports whether s is one of the known statuses.
func (s NoteStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusSynced, StatusDraft, StatusFailed:
		return true
	}
	return false
}

// Note is one voice memo: the audio reference plus the text derived from it.
type Note struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Transcript string     `json:"transcript"`
	Summary    string     `json:"summary"`
	AudioPath  string     `json:"audio_path"`
	Timestamp  time.Time  `json:"timestamp"`
	Status     NoteStatus `json:"status"`
}

// Provider identifies a remote AI service.
type Provider string

const (
	ProviderGemini Provider = "GEMINI"
	ProviderOpenAI Provider = "OPENAI"
)

// ParseProvider maps a stored string to a Provider, defaulting to Gemini
// for unknown values so a corrupted preference never breaks startup.
func ParseProvider(s string) Provider {
	if Provider(s) == ProviderOpenAI {
		return ProviderOpenAI
	}
	return ProviderGemini
}

// Preferences is the merged view over the plain and encrypted partitions.
type Preferences struct {
	SelectedProvider    Provider `json:"selected_provider"`
	GeminiAPIKey        string   `json:"gemini_api_key"`
	OpenAIAPIKey        string   `json:"openai_api_key"`
	OnboardingCompleted bool     `json:"onboarding_completed"`
}

// KeyFor returns the credential configured for the given provider.
func (p Preferences) KeyFor(provider Provider) string {
	if provider == ProviderOpenAI {
		return p.OpenAIAPIKey
	}
	return p.GeminiAPIKey
}

// Analysis is the unified result of one processing run.
type Analysis struct {
	Title      string
	Summary    string
	Transcript string
}

type AuthToken struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
