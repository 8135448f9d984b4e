package dedupe

import (
	"context"
	"sync"
)

type MockLLMClient struct {
	Response string
	Err      error

	mu      sync.Mutex
	Prompts []string
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// MockEmbedderClient serves a fixed vector per input text. Texts without an
// entry embed as nil, which disables the embedding method for them. Embed is
// called from concurrent workers, so the call counter is guarded.
type MockEmbedderClient struct {
	Vectors map[string][]float32
	Err     error

	mu    sync.Mutex
	Calls int
}

func (m *MockEmbedderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vectors[text], nil
}
