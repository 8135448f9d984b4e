package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/latticehq/lattice/internal/core/model"
)

// FindDuplicateGroups scans the user's most-mentioned entities for likely
// duplicates. A zero threshold means "use the configured default"; the
// detector clamps whatever arrives.
func (e *Engine) FindDuplicateGroups(ctx context.Context, userID uuid.UUID, entityType model.EntityType, threshold float64) ([]model.DuplicateGroup, error) {
	if entityType != "" && !entityType.Valid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, entityType)
	}
	if threshold == 0 {
		threshold = e.dedupeThreshold
	}

	entities, err := e.Store.ListEntities(ctx, userID, entityType, e.maxDuplicateScan)
	if err != nil {
		return nil, upstreamErr("list entities", err)
	}

	groups, err := e.Detector.FindDuplicateGroups(ctx, entities, threshold)
	if err != nil {
		return nil, upstreamErr("duplicate detection", err)
	}
	return groups, nil
}
