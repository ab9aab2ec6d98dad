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
	defaultOpenAIBaseURL = "https://api.openai.com"
	openAIModel          = "gpt-4o-mini"
	openAIMaxTokens      = 4096
)

// OpenAI is the text-only provider. Chat completions take no audio input, so
// the transcript must come from the audio-capable provider first.
type OpenAI struct {
	BaseURL string
	client  *http.Client
}

func NewOpenAI(baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{BaseURL: baseURL, client: newHTTPClient()}
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Summarize implements Summarizer.
func (o *OpenAI) Summarize(ctx context.Context, transcript, apiKey string) (models.Analysis, error) {
	reqBody := openAIRequest{
		Model:     openAIModel,
		MaxTokens: openAIMaxTokens,
		Messages: []openAIMessage{
			{Role: "system", Content: summaryInstruction},
			{Role: "user", Content: "Text to process:\n" + transcript},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return models.Analysis{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/v1/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return models.Analysis{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("calling OpenAI API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return models.Analysis{}, errs.FromStatus(resp.StatusCode, fmt.Sprintf("openAI API error: %s", respBody))
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return models.Analysis{}, fmt.Errorf("parsing OpenAI response: %w", err)
	}
	if apiResp.Error != nil {
		msg := apiResp.Error.Message
		if msg == "" {
			msg = apiResp.Error.Code
		}
		return models.Analysis{}, errs.New(errs.KindRemoteError, "openAI API error: "+msg)
	}

	if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message.Content == "" {
		return models.Analysis{}, errs.New(errs.KindRemoteError, "empty response from OpenAI API")
	}

	title, summary := ParseAnalysis(apiResp.Choices[0].Message.Content)
	return models.Analysis{Title: title, Summary: summary, Transcript: transcript}, nil
}
