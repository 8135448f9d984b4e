package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/latticehq/lattice/internal/config"
	"github.com/latticehq/lattice/internal/core/common"
	"github.com/latticehq/lattice/internal/core/model"
	"github.com/latticehq/lattice/internal/llm"
)

// Candidate producer for the reconciliation pipeline. The engine treats it
// as a black box: transcript in, candidates out, no store access.

const defaultEntityPrompt = `Extract named entities from this meeting transcript (language: %s).

Entity types: person, organization, project, topic, technology, product, location, date.
Do not extract speaker labels, roles ("my manager"), durations, or generic references ("the company").
Unify name variants onto the most complete form and report how often each entity is mentioned.

Return a JSON object:
{
  "entities": [
    {"type": "person", "value": "Dana Levi", "mentions": 3, "context": "short quote", "confidence": 0.9}
  ]
}

Transcript:
%s`

const defaultRelationshipPrompt = `Identify relationships between known entities in this meeting transcript (language: %s).

Allowed relationship types: %s.
Use only these entities as endpoints, referenced exactly by value: %s.
Report confidence in [0,1] for each relationship; include a short supporting quote as context.

Return a JSON object:
{
  "relationships": [
    {"source_value": "Dana Levi", "target_value": "Acme", "relationship_type": "WORKS_AT", "confidence": 0.85, "context": "short quote"}
  ]
}

Transcript:
%s`

type Service struct {
	LLM           llm.LLMClient
	Prompts       config.ExtractionPrompts
	MinConfidence float64
}

func NewService(llmClient llm.LLMClient, prompts config.ExtractionPrompts, minConfidence float64) *Service {
	return &Service{
		LLM:           llmClient,
		Prompts:       prompts,
		MinConfidence: minConfidence,
	}
}

type entityPayload struct {
	Entities []model.CandidateEntity `json:"entities"`
}

type relationshipPayload struct {
	Relationships []model.CandidateRelationship `json:"relationships"`
}

// ExtractEntities returns entity candidates for a transcript. Candidates
// below the extraction confidence floor or without a value are dropped
// here, before any store is touched.
func (s *Service) ExtractEntities(ctx context.Context, segments []model.TranscriptSegment, language string) ([]model.CandidateEntity, error) {
	tpl := s.Prompts.Entities
	if tpl == "" {
		tpl = defaultEntityPrompt
	}
	prompt := fmt.Sprintf(tpl, language, FormatTranscript(segments))

	response, err := s.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("entity extraction failed: %w", err)
	}

	result, err := common.ParseJSON[entityPayload](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse entity extraction response: %w", err)
	}

	out := make([]model.CandidateEntity, 0, len(result.Entities))
	for _, c := range result.Entities {
		if strings.TrimSpace(c.Value) == "" {
			continue
		}
		if c.Confidence < s.MinConfidence {
			continue
		}
		if c.Mentions < 1 {
			c.Mentions = 1
		}
		out = append(out, c)
	}
	return out, nil
}

// ExtractRelationships returns edge candidates between already-resolved
// entities. knownEntities scopes the prompt so endpoints come back as
// resolvable values.
func (s *Service) ExtractRelationships(ctx context.Context, segments []model.TranscriptSegment, knownEntities []string, language string) ([]model.CandidateRelationship, error) {
	if len(knownEntities) < 2 {
		return nil, nil
	}

	tpl := s.Prompts.Relationships
	if tpl == "" {
		tpl = defaultRelationshipPrompt
	}

	var types []string
	for _, t := range model.AllRelationshipTypes() {
		types = append(types, string(t))
	}

	prompt := fmt.Sprintf(tpl,
		language,
		strings.Join(types, ", "),
		strings.Join(knownEntities, "; "),
		FormatTranscript(segments),
	)

	response, err := s.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("relationship extraction failed: %w", err)
	}

	result, err := common.ParseJSON[relationshipPayload](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse relationship extraction response: %w", err)
	}

	out := make([]model.CandidateRelationship, 0, len(result.Relationships))
	for _, c := range result.Relationships {
		if strings.TrimSpace(c.SourceValue) == "" || strings.TrimSpace(c.TargetValue) == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// FormatTranscript renders diarized segments as "speaker: text" lines.
func FormatTranscript(segments []model.TranscriptSegment) string {
	var b strings.Builder
	for _, seg := range segments {
		if seg.Speaker != "" {
			b.WriteString(seg.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(seg.Text)
		b.WriteString("\n")
	}
	return b.String()
}
