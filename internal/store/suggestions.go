package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/latticehq/lattice/internal/core/model"
)

func (s *Store) CreateSuggestion(ctx context.Context, row *model.RelationshipSuggestion) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = model.SuggestionPending
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create suggestion: %w", err)
	}
	return nil
}

func (s *Store) GetSuggestion(ctx context.Context, userID, id uuid.UUID) (*model.RelationshipSuggestion, error) {
	var row model.RelationshipSuggestion
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) ListSuggestions(ctx context.Context, userID uuid.UUID, status model.SuggestionStatus, limit int) ([]model.RelationshipSuggestion, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.RelationshipSuggestion
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	return rows, nil
}

// MarkSuggestionReviewed flips a pending suggestion into a terminal state
// with a guarded update. Zero rows touched means the pending predicate no
// longer held: ErrNotPending, no read-modify-write race.
func (s *Store) MarkSuggestionReviewed(ctx context.Context, userID, id uuid.UUID, status model.SuggestionStatus, reviewedAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&model.RelationshipSuggestion{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, model.SuggestionPending).
		Updates(map[string]interface{}{
			"status":      status,
			"reviewed_at": reviewedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark suggestion reviewed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}
