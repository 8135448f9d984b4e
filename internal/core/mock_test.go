package core

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/require"

	"github.com/latticehq/lattice/internal/config"
	"github.com/latticehq/lattice/internal/llm"
	"github.com/latticehq/lattice/internal/logger"
	"github.com/latticehq/lattice/internal/store"
)

// ExecutedQuery is one call the MockDriver saw.
type ExecutedQuery struct {
	Query  string
	Params map[string]interface{}
}

// MockDriver scripts graph behavior by query substring: a call whose query
// text contains a Failures key returns that error, a Results key returns
// that result, anything else succeeds with an empty result. Every call is
// journaled so tests can assert on what reached the graph and in what
// order.
type MockDriver struct {
	Results  map[string]neo4j.EagerResult
	Failures map[string]error

	mu       sync.Mutex
	Executed []ExecutedQuery
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.mu.Lock()
	m.Executed = append(m.Executed, ExecutedQuery{Query: query, Params: params})
	m.mu.Unlock()

	for needle, err := range m.Failures {
		if strings.Contains(query, needle) {
			return neo4j.EagerResult{}, err
		}
	}
	for needle, res := range m.Results {
		if strings.Contains(query, needle) {
			return res, nil
		}
	}
	return neo4j.EagerResult{}, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error { return nil }

func (m *MockDriver) Close(ctx context.Context) error { return nil }

// QueriesContaining returns the journaled calls whose query text contains
// the needle.
func (m *MockDriver) QueriesContaining(needle string) []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExecutedQuery
	for _, q := range m.Executed {
		if strings.Contains(q.Query, needle) {
			out = append(out, q)
		}
	}
	return out
}

// edgeResult builds the single-record result a resolved edge upsert
// returns.
func edgeResult(sourceID, targetID string) neo4j.EagerResult {
	return neo4j.EagerResult{
		Records: []*neo4j.Record{{
			Keys:   []string{"source_id", "target_id"},
			Values: []interface{}{sourceID, targetID},
		}},
	}
}

type MockLLM struct {
	Response      string
	ResponseQueue []string
	Err           error
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
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

type MockEmbedder struct {
	Vector []float32
	Err    error
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine_test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEngine(t *testing.T, drv *MockDriver, mockLLM *MockLLM) (*Engine, *store.Store) {
	t.Helper()
	return newTestEngineWithConfig(t, drv, mockLLM, config.Default())
}

func newTestEngineWithConfig(t *testing.T, drv *MockDriver, mockLLM *MockLLM, cfg *config.Config) (*Engine, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	var llmClient llm.LLMClient
	if mockLLM != nil {
		llmClient = mockLLM
	}
	e := NewEngine(st, drv, llmClient, nil, nil, cfg, logger.NewNop())
	return e, st
}
