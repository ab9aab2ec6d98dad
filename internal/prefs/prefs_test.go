package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"voicenotes/internal/models"
)

const testSecret = "correct horse battery staple"

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, testSecret)
	require.NoError(t, err)

	require.NoError(t, s.SetProvider(models.ProviderOpenAI))
	require.NoError(t, s.SetAPIKey(models.ProviderGemini, "gm-key"))
	require.NoError(t, s.SetAPIKey(models.ProviderOpenAI, "sk-key"))
	require.NoError(t, s.SetOnboardingCompleted(true))

	// A fresh instance over the same directory sees everything.
	reopened, err := Open(dir, testSecret)
	require.NoError(t, err)

	p := reopened.Preferences()
	assert.Equal(t, models.ProviderOpenAI, p.SelectedProvider)
	assert.Equal(t, "gm-key", p.GeminiAPIKey)
	assert.Equal(t, "sk-key", p.OpenAIAPIKey)
	assert.True(t, p.OnboardingCompleted)
}

func TestDefaults(t *testing.T) {
	s, err := Open(t.TempDir(), testSecret)
	require.NoError(t, err)

	p := s.Preferences()
	assert.Equal(t, models.ProviderGemini, p.SelectedProvider)
	assert.Empty(t, p.GeminiAPIKey)
	assert.Empty(t, p.OpenAIAPIKey)
	assert.False(t, p.OnboardingCompleted)
}

func TestCredentialsEncryptedAtRest(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, testSecret)
	require.NoError(t, err)
	require.NoError(t, s.SetAPIKey(models.ProviderGemini, "super-secret-api-key"))

	sealed, err := os.ReadFile(filepath.Join(dir, credentialFile))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "super-secret-api-key")

	// The plain partition never sees the credential.
	plain, err := os.ReadFile(filepath.Join(dir, plainFile))
	if err == nil {
		assert.NotContains(t, string(plain), "super-secret-api-key")
	}
}

func TestWrongSecretCannotDecrypt(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, testSecret)
	require.NoError(t, err)
	require.NoError(t, s.SetAPIKey(models.ProviderGemini, "gm-key"))

	_, err = Open(dir, "a different secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt")
}

func TestLegacyKeyMigration(t *testing.T) {
	dir := t.TempDir()

	// Simulate an install that kept credentials in the plain partition.
	legacy := map[string]any{
		"selected_provider": "OPENAI",
		"gemini_api_key":    "legacy-gm",
		"openai_api_key":    "legacy-sk",
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, plainFile), data, 0o600))

	s, err := Open(dir, testSecret)
	require.NoError(t, err)

	p := s.Preferences()
	assert.Equal(t, "legacy-gm", p.GeminiAPIKey)
	assert.Equal(t, "legacy-sk", p.OpenAIAPIKey)
	assert.Equal(t, models.ProviderOpenAI, p.SelectedProvider)

	// The plaintext copies are gone.
	plain, err := os.ReadFile(filepath.Join(dir, plainFile))
	require.NoError(t, err)
	assert.NotContains(t, string(plain), "legacy-gm")
	assert.NotContains(t, string(plain), "legacy-sk")
}

func TestLegacyMigrationIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	legacy := map[string]any{"gemini_api_key": "legacy-gm"}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, plainFile), data, 0o600))

	s, err := Open(dir, testSecret)
	require.NoError(t, err)

	// The encrypted value survives later startups and repeated migrations.
	require.NoError(t, s.SetAPIKey(models.ProviderGemini, "rotated"))
	require.NoError(t, s.MigrateLegacyKeys())

	reopened, err := Open(dir, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "rotated", reopened.Preferences().GeminiAPIKey)
}

func TestMigrationDoesNotOverwriteEncrypted(t *testing.T) {
	dir := t.TempDir()

	// Encrypted partition already holds a key...
	first, err := Open(dir, testSecret)
	require.NoError(t, err)
	require.NoError(t, first.SetAPIKey(models.ProviderGemini, "current"))

	// ...and a stale plaintext copy shows up again.
	plainPath := filepath.Join(dir, plainFile)
	data, err := json.Marshal(map[string]any{"gemini_api_key": "stale-legacy"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(plainPath, data, 0o600))

	s, err := Open(dir, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "current", s.Preferences().GeminiAPIKey)
}

func TestHexMasterKeySkipsDerivation(t *testing.T) {
	dir := t.TempDir()
	hexKey := "6368616e676520746869732070617373776f726420746f206120736563726574"

	s, err := Open(dir, hexKey)
	require.NoError(t, err)
	require.NoError(t, s.SetAPIKey(models.ProviderOpenAI, "sk-key"))

	// No salt file needed when the key is given directly.
	_, err = os.Stat(filepath.Join(dir, saltFile))
	assert.True(t, os.IsNotExist(err))

	reopened, err := Open(dir, hexKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-key", reopened.Preferences().OpenAIAPIKey)
}

func TestEmptySecretRejected(t *testing.T) {
	_, err := Open(t.TempDir(), "")
	require.Error(t, err)
}
