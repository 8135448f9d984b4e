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

// ResolveEntity lands one extracted candidate in both stores. Identity is
// (user_id, normalized_key) regardless of the candidate's type: a repeat
// sighting adds its mention count onto the existing row and never changes
// the first-seen type or display value. The graph node mirrors the row, and
// a mention record plus a MENTIONED_IN edge tie the sighting to its session.
func (e *Engine) ResolveEntity(ctx context.Context, userID, sessionID uuid.UUID, c model.CandidateEntity) (uuid.UUID, error) {
	displayValue := strings.TrimSpace(c.Value)
	key := model.NormalizeKey(displayValue)
	if key == "" {
		return uuid.Nil, fmt.Errorf("%w: entity value is empty", ErrInvalidInput)
	}

	delta := c.Mentions
	if delta < 1 {
		delta = 1
	}

	entity, err := e.Store.UpsertEntity(ctx, &model.Entity{
		UserID:        userID,
		NormalizedKey: key,
		EntityType:    model.ParseEntityType(c.Type),
		DisplayValue:  displayValue,
		MentionCount:  delta,
		Aliases:       model.AliasesJSON(nil),
	})
	if err != nil {
		return uuid.Nil, upstreamErr("upsert entity", err)
	}

	if err := e.upsertEntityNode(ctx, entity, delta); err != nil {
		return uuid.Nil, err
	}

	mention := &model.EntityMention{
		EntityID:    entity.ID,
		SessionID:   sessionID,
		Context:     c.Context,
		StartOffset: c.StartOffset,
		EndOffset:   c.EndOffset,
	}
	if c.Confidence > 0 {
		confidence := c.Confidence
		mention.Confidence = &confidence
	}
	if err := e.Store.InsertMention(ctx, mention); err != nil {
		return uuid.Nil, upstreamErr("insert mention", err)
	}

	if err := e.upsertMentionEdge(ctx, entity.ID, userID, sessionID, c.Context, delta); err != nil {
		return uuid.Nil, err
	}

	return entity.ID, nil
}

func (e *Engine) upsertEntityNode(ctx context.Context, entity *model.Entity, delta int) error {
	query, err := driver.EntityNodeUpsertQuery(entity.EntityType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	params := map[string]interface{}{
		"user_id":        entity.UserID.String(),
		"normalized_key": entity.NormalizedKey,
		"id":             entity.ID.String(),
		"entity_type":    string(entity.EntityType),
		"display_value":  entity.DisplayValue,
		"aliases":        entity.AliasStrings(),
		"mention_count":  delta,
		"now":            time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := e.Driver.ExecuteQuery(ctx, query, params); err != nil {
		return upstreamErr("graph entity upsert", err)
	}
	return nil
}

func (e *Engine) upsertMentionEdge(ctx context.Context, entityID, userID, sessionID uuid.UUID, snippet string, delta int) error {
	params := map[string]interface{}{
		"entity_id":     entityID.String(),
		"user_id":       userID.String(),
		"session_id":    sessionID.String(),
		"context":       snippet,
		"mention_count": delta,
		"now":           time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := e.Driver.ExecuteQuery(ctx, driver.MentionEdgeUpsertQuery, params); err != nil {
		return upstreamErr("graph mention edge upsert", err)
	}
	return nil
}
