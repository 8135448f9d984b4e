package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/latticehq/lattice/internal/core/model"
	"github.com/latticehq/lattice/internal/driver"
)

// MergeEntities folds the duplicate entity into the canonical one across
// both stores. The graph runs first: its merge query tolerates an
// already-absorbed duplicate node, so if the relational transaction fails
// afterwards a retry converges instead of double-counting. The relational
// step itself is a single transaction, so callers never observe a
// half-merged row.
func (e *Engine) MergeEntities(ctx context.Context, userID, canonicalID, duplicateID uuid.UUID) (*model.Entity, error) {
	if canonicalID == duplicateID {
		return nil, fmt.Errorf("%w: cannot merge an entity into itself", ErrConflict)
	}

	canonical, err := e.Store.GetEntity(ctx, userID, canonicalID)
	if err != nil {
		return nil, storeErr("canonical entity", err)
	}
	duplicate, err := e.Store.GetEntity(ctx, userID, duplicateID)
	if err != nil {
		return nil, storeErr("duplicate entity", err)
	}

	params := map[string]interface{}{
		"user_id":      userID.String(),
		"canonical_id": canonicalID.String(),
		"duplicate_id": duplicateID.String(),
		"now":          time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := e.Driver.ExecuteQuery(ctx, driver.MergeEntityNodesQuery, params); err != nil {
		return nil, upstreamErr("graph merge", err)
	}

	merged, err := e.Store.MergeEntities(ctx, userID, canonicalID, duplicateID)
	if err != nil {
		return nil, upstreamErr("relational merge", err)
	}

	e.Log.Info("entities merged",
		"user_id", userID,
		"canonical", canonical.DisplayValue,
		"duplicate", duplicate.DisplayValue,
		"mention_count", merged.MentionCount)
	return merged, nil
}
