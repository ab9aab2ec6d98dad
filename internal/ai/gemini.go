package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"voicenotes/internal/errs"
	"voicenotes/internal/models"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	geminiModel          = "gemini-2.0-flash"
)

// Gemini is the audio-capable provider: one multimodal call transcribes the
// recording, a follow-up call condenses the transcript.
type Gemini struct {
	BaseURL string
	client  *http.Client
}

func NewGemini(baseURL string) *Gemini {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &Gemini{BaseURL: baseURL, client: newHTTPClient()}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// AnalyzeAudio implements Analyzer.
func (g *Gemini) AnalyzeAudio(ctx context.Context, audio Audio, apiKey string) (models.Analysis, error) {
	transcript, err := g.Transcribe(ctx, audio, apiKey)
	if err != nil {
		return models.Analysis{}, err
	}

	analysis, err := g.Summarize(ctx, transcript, apiKey)
	if err != nil {
		return models.Analysis{}, err
	}
	return analysis, nil
}

// Transcribe sends the instruction text part and the inline audio part in a
// single multimodal request.
func (g *Gemini) Transcribe(ctx context.Context, audio Audio, apiKey string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: transcribeInstruction},
				{InlineData: &geminiInlineData{MIMEType: audio.MIMEType, Data: audio.Base64}},
			},
		}},
	}

	text, err := g.generate(ctx, req, apiKey)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return text, nil
}

// Summarize implements Summarizer.
func (g *Gemini) Summarize(ctx context.Context, transcript, apiKey string) (models.Analysis, error) {
	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: summaryInstruction + "\n\n---\n\nText to process:\n" + transcript},
			},
		}},
	}

	reply, err := g.generate(ctx, req, apiKey)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("failed to generate summary: %w", err)
	}

	title, summary := ParseAnalysis(reply)
	return models.Analysis{Title: title, Summary: summary, Transcript: transcript}, nil
}

func (g *Gemini) generate(ctx context.Context, reqBody geminiRequest, apiKey string) (string, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.BaseURL, geminiModel, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Gemini API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", errs.FromStatus(resp.StatusCode, fmt.Sprintf("gemini API error: %s", respBody))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parsing Gemini response: %w", err)
	}
	if apiResp.Error != nil {
		return "", errs.FromStatus(apiResp.Error.Code, "gemini API error: "+apiResp.Error.Message)
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", errs.New(errs.KindRemoteError, "empty response from Gemini API")
	}
	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}
