package extraction

import (
	"context"
)

type MockLLMClient struct {
	Response      string
	ResponseQueue []string
	Err           error
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.ResponseQueue) > 0 {
		resp := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return resp, nil
	}
	return m.Response, nil
}

type MockEmbedderClient struct {
	Response []float32
	Err      error
}

func (m *MockEmbedderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}
