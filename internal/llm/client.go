package llm

import (
	"context"
)

// LLMClient generates free-form completions. Extraction and duplicate
// judgment both go through this single method.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EmbedderClient turns text into a vector. Providers without embedding
// support surface as a nil client; callers skip embedding-based scoring.
type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
