// Package ai holds the provider clients that turn recorded audio into a
// (title, summary, transcript) triple. Clients are stateless request/response
// mappers: no retries, no backoff, a failed call surfaces immediately.
package ai

import (
	"context"
	"net/http"
	"time"

	"voicenotes/internal/models"
)

// Audio is a recorded memo prepared for transport.
type Audio struct {
	Base64   string
	MIMEType string
}

// Analyzer is the provider-facing contract used by the coordinator.
type Analyzer interface {
	// AnalyzeAudio transcribes the audio and derives title and summary.
	AnalyzeAudio(ctx context.Context, audio Audio, apiKey string) (models.Analysis, error)
}

// Summarizer derives title and summary from an existing transcript. Used for
// providers that cannot take audio input directly.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, apiKey string) (models.Analysis, error)
}

// Uploads of multi-minute recordings over slow links take a while; the
// timeout is deliberately generous.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Minute}
}

const summaryInstruction = `You are an assistant that processes voice notes.
Extract the meaning of the text.

Reply STRICTLY as a JSON object WITHOUT markdown formatting:
{"title": "Short title (at most 4-5 words)", "summary": "Condensed summary (2-3 sentences, no bullets or asterisks)"}

IMPORTANT:
- No bold text, asterisks or special characters
- No markdown formatting
- No explanations, JSON only
- Answer in the same language as the input text`

const transcribeInstruction = `Transcribe this audio to text accurately.
Return ONLY the transcription, nothing else.
Keep the original language of the audio.`
