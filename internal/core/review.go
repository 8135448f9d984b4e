package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/latticehq/lattice/internal/core/model"
	"github.com/latticehq/lattice/internal/store"
)

// ApproveSuggestion flips a pending suggestion to approved. The graph edge
// is written first, with provenance "user_approved"; only after that write
// succeeds does the relational row change. A graph failure therefore leaves
// the suggestion pending and retryable, and a retry converges because the
// edge upsert is idempotent. A suggestion is never marked approved without
// its edge existing.
func (e *Engine) ApproveSuggestion(ctx context.Context, userID, suggestionID uuid.UUID) (*model.RelationshipSuggestion, error) {
	suggestion, err := e.Store.GetSuggestion(ctx, userID, suggestionID)
	if err != nil {
		return nil, storeErr("suggestion", err)
	}
	if suggestion.Status.Terminal() {
		return nil, fmt.Errorf("%w: suggestion already %s", ErrConflict, suggestion.Status)
	}

	// The type was validated when the suggestion was stored, but it is
	// about to become query text again, so it gets checked again.
	if !suggestion.RelationshipType.Valid() || !e.allowedTypes[suggestion.RelationshipType] {
		return nil, fmt.Errorf("%w: relationship type %q is not allowed", ErrInvalidInput, suggestion.RelationshipType)
	}

	resolved, err := e.upsertRelationshipEdge(ctx, userID, suggestion.SessionID,
		suggestion.SourceValue, suggestion.TargetValue, suggestion.RelationshipType,
		suggestion.Confidence, suggestion.Context, model.ProvenanceUserApproved)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, fmt.Errorf("%w: relationship endpoints could not be resolved", ErrUpstream)
	}

	now := time.Now().UTC()
	if err := e.Store.MarkSuggestionReviewed(ctx, userID, suggestionID, model.SuggestionApproved, now); err != nil {
		if errors.Is(err, store.ErrNotPending) {
			return nil, fmt.Errorf("%w: suggestion was reviewed concurrently", ErrConflict)
		}
		return nil, upstreamErr("mark suggestion approved", err)
	}

	suggestion.Status = model.SuggestionApproved
	suggestion.ReviewedAt = &now
	e.Log.Info("suggestion approved",
		"suggestion_id", suggestionID, "type", suggestion.RelationshipType)
	return suggestion, nil
}

// RejectSuggestion is the relational-only transition: no graph interaction,
// terminal once done.
func (e *Engine) RejectSuggestion(ctx context.Context, userID, suggestionID uuid.UUID) (*model.RelationshipSuggestion, error) {
	suggestion, err := e.Store.GetSuggestion(ctx, userID, suggestionID)
	if err != nil {
		return nil, storeErr("suggestion", err)
	}
	if suggestion.Status.Terminal() {
		return nil, fmt.Errorf("%w: suggestion already %s", ErrConflict, suggestion.Status)
	}

	now := time.Now().UTC()
	if err := e.Store.MarkSuggestionReviewed(ctx, userID, suggestionID, model.SuggestionRejected, now); err != nil {
		if errors.Is(err, store.ErrNotPending) {
			return nil, fmt.Errorf("%w: suggestion was reviewed concurrently", ErrConflict)
		}
		return nil, upstreamErr("mark suggestion rejected", err)
	}

	suggestion.Status = model.SuggestionRejected
	suggestion.ReviewedAt = &now
	e.Log.Info("suggestion rejected", "suggestion_id", suggestionID)
	return suggestion, nil
}

// CreateSuggestion records a manually entered relationship candidate as
// pending. Unlike extraction candidates, a bad type here is the caller's
// input error rather than a counted outcome.
func (e *Engine) CreateSuggestion(ctx context.Context, userID, sessionID uuid.UUID, c model.CandidateRelationship) (*model.RelationshipSuggestion, error) {
	relType, ok := model.ParseRelationshipType(c.RelationshipType)
	if !ok || !e.allowedTypes[relType] {
		return nil, fmt.Errorf("%w: relationship type %q is not allowed", ErrInvalidInput, c.RelationshipType)
	}

	source := strings.TrimSpace(c.SourceValue)
	target := strings.TrimSpace(c.TargetValue)
	if source == "" || target == "" {
		return nil, fmt.Errorf("%w: relationship endpoints are required", ErrInvalidInput)
	}

	if _, err := e.Store.GetSession(ctx, userID, sessionID); err != nil {
		return nil, storeErr("session", err)
	}

	confidence := c.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
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
	if ent, err := e.Store.GetEntityByKey(ctx, userID, model.NormalizeKey(source)); err == nil {
		suggestion.SourceEntityID = &ent.ID
	}
	if ent, err := e.Store.GetEntityByKey(ctx, userID, model.NormalizeKey(target)); err == nil {
		suggestion.TargetEntityID = &ent.ID
	}

	if err := e.Store.CreateSuggestion(ctx, suggestion); err != nil {
		return nil, upstreamErr("create suggestion", err)
	}
	return suggestion, nil
}
