// Package prefs persists user preferences across two partitions: provider
// selection and flags in a plain JSON file, API credentials in a sealed
// file encrypted at rest.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"voicenotes/internal/models"
)

const (
	plainFile      = "prefs.json"
	credentialFile = "credentials.enc"

	keyGemini = "gemini_api_key"
	keyOpenAI = "openai_api_key"
)

// plainPrefs is the on-disk shape of the plain partition.
//
// The legacy key fields are only ever read: older versions stored
// credentials here and MigrateLegacyKeys moves them out.
type plainPrefs struct {
	SelectedProvider    string `json:"selected_provider"`
	OnboardingCompleted bool   `json:"onboarding_completed"`

	LegacyGeminiKey string `json:"gemini_api_key,omitempty"`
	LegacyOpenAIKey string `json:"openai_api_key,omitempty"`
}

// Store holds preferences cached in memory and persisted on every write.
type Store struct {
	dir string
	box *secretBox

	mu          sync.RWMutex
	plain       plainPrefs
	credentials map[string]string
}

// Open loads both partitions from dir, creating them on first use. The
// master secret seals the credential partition: either 64 hex characters
// used directly or any passphrase run through a key derivation.
func Open(dir string, masterSecret string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create prefs directory: %w", err)
	}

	box, err := newSecretBox(dir, masterSecret)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:         dir,
		box:         box,
		credentials: make(map[string]string),
	}

	if err := s.loadPlain(); err != nil {
		return nil, err
	}
	if err := s.loadCredentials(); err != nil {
		return nil, err
	}
	if err := s.MigrateLegacyKeys(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) loadPlain() error {
	data, err := os.ReadFile(filepath.Join(s.dir, plainFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read preferences: %w", err)
	}
	if err := json.Unmarshal(data, &s.plain); err != nil {
		return fmt.Errorf("failed to parse preferences: %w", err)
	}
	return nil
}

func (s *Store) loadCredentials() error {
	sealed, err := os.ReadFile(filepath.Join(s.dir, credentialFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}

	data, err := s.box.open(sealed)
	if err != nil {
		return fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	if err := json.Unmarshal(data, &s.credentials); err != nil {
		return fmt.Errorf("failed to parse credentials: %w", err)
	}
	return nil
}

func (s *Store) savePlain() error {
	data, err := json.MarshalIndent(s.plain, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, plainFile), data, 0o600)
}

func (s *Store) saveCredentials() error {
	data, err := json.Marshal(s.credentials)
	if err != nil {
		return err
	}
	sealed, err := s.box.seal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, credentialFile), sealed, 0o600)
}

// MigrateLegacyKeys moves credentials out of the plain partition into the
// sealed file and deletes the plaintext copies. Safe to run on every
// startup: it no-ops when nothing is left to move.
func (s *Store) MigrateLegacyKeys() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	migrated := false
	if s.plain.LegacyGeminiKey != "" && s.credentials[keyGemini] == "" {
		s.credentials[keyGemini] = s.plain.LegacyGeminiKey
		migrated = true
	}
	if s.plain.LegacyOpenAIKey != "" && s.credentials[keyOpenAI] == "" {
		s.credentials[keyOpenAI] = s.plain.LegacyOpenAIKey
		migrated = true
	}
	if s.plain.LegacyGeminiKey == "" && s.plain.LegacyOpenAIKey == "" {
		return nil
	}

	s.plain.LegacyGeminiKey = ""
	s.plain.LegacyOpenAIKey = ""

	if migrated {
		if err := s.saveCredentials(); err != nil {
			return fmt.Errorf("failed to migrate credentials: %w", err)
		}
	}
	return s.savePlain()
}

// Preferences returns the merged view over both partitions.
func (s *Store) Preferences() models.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Preferences{
		SelectedProvider:    models.ParseProvider(s.plain.SelectedProvider),
		GeminiAPIKey:        s.credentials[keyGemini],
		OpenAIAPIKey:        s.credentials[keyOpenAI],
		OnboardingCompleted: s.plain.OnboardingCompleted,
	}
}

func (s *Store) SetProvider(p models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plain.SelectedProvider = string(p)
	return s.savePlain()
}

func (s *Store) SetOnboardingCompleted(done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plain.OnboardingCompleted = done
	return s.savePlain()
}

func (s *Store) SetAPIKey(p models.Provider, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := keyGemini
	if p == models.ProviderOpenAI {
		name = keyOpenAI
	}
	s.credentials[name] = key
	return s.saveCredentials()
}
