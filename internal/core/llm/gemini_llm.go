package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/thinkbook-lm/thinkbook/internal/core"
)

type GeminiLLM struct {
	client      *genai.Client
	modelName   string
	maxTokens   int
	temperature float64
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string, maxTokens int, temperature float64) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName, maxTokens: maxTokens, temperature: temperature}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) model() *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.modelName)
	if g.maxTokens > 0 {
		m.SetMaxOutputTokens(int32(g.maxTokens))
	}
	m.SetTemperature(float32(g.temperature))
	return m
}

func partsText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func (g *GeminiLLM) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model().GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return partsText(resp), nil
}

func (g *GeminiLLM) GenerateStream(ctx context.Context, prompt string, emit func(fragment string) error) error {
	it := g.model().GenerateContentStream(ctx, genai.Text(prompt))
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini generate: %w", err)
		}
		if text := partsText(resp); text != "" {
			if err := emit(text); err != nil {
				return err
			}
		}
	}
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
