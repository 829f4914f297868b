package core

import "context"

// EmbeddingProvider maps a batch of texts to fixed-dimension vectors.
// Implementations must be safe for concurrent batches.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider maps a prompt to a completion, either in one shot or as a
// stream of text fragments.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream calls emit once per fragment in order. It returns when
	// the stream is exhausted, ctx is cancelled, or emit returns an error
	// (in which case the underlying stream is abandoned, not drained).
	GenerateStream(ctx context.Context, prompt string, emit func(fragment string) error) error
}
