package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const summarizeInstruction = `You condense answers from a hospital information assistant so they can be read aloud on a phone call.
Keep every critical detail such as timings, fees, documents and phone numbers.
Keep it under 80 words, conversational, and speak directly to the caller.
Drop phrases like "based on the document" and never add facts that are not in the text.`

// GeminiSummarizer shortens answers with a Gemini model.
type GeminiSummarizer struct {
	client  *genai.Client
	modelID string
}

// NewGeminiSummarizer creates a summarizer backed by the Gemini API.
func NewGeminiSummarizer(ctx context.Context, apiKey, modelID string) (*GeminiSummarizer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("qa: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("qa: failed to create gemini client: %w", err)
	}
	return &GeminiSummarizer{client: client, modelID: modelID}, nil
}

// Summarize returns a speakable version of text.
func (g *GeminiSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	model := g.client.GenerativeModel(g.modelID)
	model.SetTemperature(0.2)
	model.SetMaxOutputTokens(256)
	model.SystemInstruction = genai.NewUserContent(genai.Text(summarizeInstruction))

	resp, err := model.GenerateContent(ctx, genai.Text("Please summarize this text:\n\n"+text))
	if err != nil {
		return "", fmt.Errorf("qa: gemini summarize failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("qa: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("qa: gemini returned empty content")
	}
	var out strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			out.WriteString(string(t))
		}
	}
	summary := strings.TrimSpace(out.String())
	if summary == "" {
		return "", errors.New("qa: gemini returned empty summary")
	}
	return summary, nil
}

// Close releases resources held by the Gemini client.
func (g *GeminiSummarizer) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
