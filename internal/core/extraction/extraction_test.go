package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticehq/lattice/internal/config"
	"github.com/latticehq/lattice/internal/core/model"
)

func TestExtractEntities(t *testing.T) {
	mockJSON := `{
		"entities": [
			{"type": "person", "value": "Dana Levi", "mentions": 3, "confidence": 0.9},
			{"type": "organization", "value": "Acme", "mentions": 2, "confidence": 0.8},
			{"type": "topic", "value": "budget", "mentions": 1, "confidence": 0.3},
			{"type": "person", "value": "   ", "mentions": 1, "confidence": 0.9}
		]
	}`

	svc := NewService(&MockLLMClient{Response: mockJSON}, config.ExtractionPrompts{}, 0.5)

	segments := []model.TranscriptSegment{
		{Speaker: "Speaker 1", Text: "Dana Levi from Acme joined the call."},
	}

	entities, err := svc.ExtractEntities(context.Background(), segments, "en")

	assert.NoError(t, err)
	// The low-confidence topic and the blank value are filtered out.
	assert.Len(t, entities, 2)
	assert.Equal(t, "Dana Levi", entities[0].Value)
	assert.Equal(t, 3, entities[0].Mentions)
	assert.Equal(t, "Acme", entities[1].Value)
}

func TestExtractEntities_MentionFloor(t *testing.T) {
	mockJSON := `{"entities": [{"type": "person", "value": "Dana", "mentions": 0, "confidence": 0.9}]}`

	svc := NewService(&MockLLMClient{Response: mockJSON}, config.ExtractionPrompts{}, 0)

	entities, err := svc.ExtractEntities(context.Background(), nil, "en")

	assert.NoError(t, err)
	assert.Len(t, entities, 1)
	assert.Equal(t, 1, entities[0].Mentions)
}

func TestExtractEntities_BadResponse(t *testing.T) {
	svc := NewService(&MockLLMClient{Response: "not json at all"}, config.ExtractionPrompts{}, 0.5)

	_, err := svc.ExtractEntities(context.Background(), nil, "en")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestExtractRelationships(t *testing.T) {
	mockJSON := `{
		"relationships": [
			{"source_value": "Dana Levi", "target_value": "Acme", "relationship_type": "WORKS_AT", "confidence": 0.85},
			{"source_value": "", "target_value": "Acme", "relationship_type": "USES", "confidence": 0.9}
		]
	}`

	svc := NewService(&MockLLMClient{Response: mockJSON}, config.ExtractionPrompts{}, 0.5)

	rels, err := svc.ExtractRelationships(context.Background(), nil, []string{"Dana Levi", "Acme"}, "en")

	assert.NoError(t, err)
	// The candidate with an empty endpoint is dropped.
	assert.Len(t, rels, 1)
	assert.Equal(t, "WORKS_AT", rels[0].RelationshipType)
	assert.Equal(t, "Dana Levi", rels[0].SourceValue)
}

func TestExtractRelationships_TooFewEntities(t *testing.T) {
	mock := &MockLLMClient{Response: `{"relationships": []}`}
	svc := NewService(mock, config.ExtractionPrompts{}, 0.5)

	rels, err := svc.ExtractRelationships(context.Background(), nil, []string{"Dana Levi"}, "en")

	// With fewer than two known entities there is nothing to relate; the
	// LLM is never called.
	assert.NoError(t, err)
	assert.Nil(t, rels)
}

func TestFormatTranscript(t *testing.T) {
	segments := []model.TranscriptSegment{
		{Speaker: "Speaker 1", Text: "Hello."},
		{Text: "No speaker label here."},
	}

	out := FormatTranscript(segments)

	assert.Equal(t, "Speaker 1: Hello.\nNo speaker label here.\n", out)
}
