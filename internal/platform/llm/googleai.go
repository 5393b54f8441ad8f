package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// GoogleAI is a Generator backed by the Google AI (Gemini) API via langchain.
type GoogleAI struct {
	model llms.Model
}

// NewGoogleAI initializes a Gemini-backed generator.
func NewGoogleAI(ctx context.Context, apiKey, modelName string) (*GoogleAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	model, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize llm: %w", err)
	}
	return &GoogleAI{model: model}, nil
}

func (g *GoogleAI) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt)
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	return out, nil
}
