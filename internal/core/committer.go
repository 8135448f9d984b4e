package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/latticehq/lattice/internal/core/model"
	"github.com/latticehq/lattice/internal/driver"
)

// CommitRelationship disposes of one relationship candidate. The type check
// runs before anything touches a store: the validated type becomes part of
// the graph query text, so an unvetted value must never get that far. At or
// above the confidence threshold the edge is written with provenance "ai";
// below it the candidate is parked as a pending suggestion. Unresolvable
// endpoints at commit time make the operation a logged no-op, not a
// suggestion.
func (e *Engine) CommitRelationship(ctx context.Context, userID, sessionID uuid.UUID, c model.CandidateRelationship) (model.CommitOutcome, error) {
	relType, ok := model.ParseRelationshipType(c.RelationshipType)
	if !ok || !e.allowedTypes[relType] {
		e.Log.Warn("relationship type rejected",
			"type", c.RelationshipType, "source", c.SourceValue, "target", c.TargetValue)
		return model.OutcomeRejectedType, nil
	}

	source := strings.TrimSpace(c.SourceValue)
	target := strings.TrimSpace(c.TargetValue)
	if source == "" || target == "" {
		return "", fmt.Errorf("%w: relationship endpoints are required", ErrInvalidInput)
	}

	confidence := c.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	if confidence >= e.threshold {
		resolved, err := e.upsertRelationshipEdge(ctx, userID, sessionID, source, target, relType, confidence, c.Context, model.ProvenanceAI)
		if err != nil {
			return "", err
		}
		if !resolved {
			e.Log.Warn("relationship endpoints unresolved, skipping",
				"source", source, "target", target, "type", relType)
			return model.OutcomeSkipped, nil
		}
		return model.OutcomeCommitted, nil
	}

	suggestion := &model.RelationshipSuggestion{
		UserID:           userID,
		SessionID:        sessionID,
		SourceValue:      source,
		TargetValue:      target,
		RelationshipType: relType,
		Confidence:       confidence,
		Context:          c.Context,
	}
	// Endpoint ids are best-effort decoration for the review UI; the
	// approve path re-resolves by value inside the graph.
	if ent, err := e.Store.GetEntityByKey(ctx, userID, model.NormalizeKey(source)); err == nil {
		suggestion.SourceEntityID = &ent.ID
	}
	if ent, err := e.Store.GetEntityByKey(ctx, userID, model.NormalizeKey(target)); err == nil {
		suggestion.TargetEntityID = &ent.ID
	}

	if err := e.Store.CreateSuggestion(ctx, suggestion); err != nil {
		return "", upstreamErr("create suggestion", err)
	}
	return model.OutcomeSuggested, nil
}

// upsertRelationshipEdge writes the typed edge between two entities matched
// by value within the user's scope. Edge facts are set on create only, so a
// repeat commit of the same triple keeps the first writer's evidence. The
// bool reports whether both endpoints resolved.
func (e *Engine) upsertRelationshipEdge(ctx context.Context, userID, sessionID uuid.UUID, source, target string, relType model.RelationshipType, confidence float64, snippet string, provenance model.Provenance) (bool, error) {
	query, err := driver.RelationshipEdgeUpsertQuery(relType)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	params := map[string]interface{}{
		"user_id":      userID.String(),
		"source_value": source,
		"target_value": target,
		"confidence":   confidence,
		"context":      snippet,
		"provenance":   string(provenance),
		"session_id":   sessionID.String(),
		"now":          time.Now().UTC().Format(time.RFC3339),
	}
	result, err := e.Driver.ExecuteQuery(ctx, query, params)
	if err != nil {
		return false, upstreamErr("graph edge upsert", err)
	}
	return len(result.Records) > 0, nil
}
