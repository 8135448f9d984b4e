package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/latticehq/lattice/internal/core/model"
)

// UpsertEntity inserts the row or, when (user_id, normalized_key) already
// exists, adds the incoming mention count onto the surviving row. Type and
// display value are never updated on conflict: the first-seen entity wins.
// The conditional upsert runs as one statement so concurrent resolvers
// cannot race a check-then-insert.
func (s *Store) UpsertEntity(ctx context.Context, row *model.Entity) (*model.Entity, error) {
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = now
	row.UpdatedAt = now

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "normalized_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"mention_count": gorm.Expr("mention_count + EXCLUDED.mention_count"),
				"updated_at":    now,
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert entity: %w", err)
	}

	// Re-read by identity key: on conflict the generated id above never
	// entered the table.
	return s.GetEntityByKey(ctx, row.UserID, row.NormalizedKey)
}

func (s *Store) GetEntity(ctx context.Context, userID, id uuid.UUID) (*model.Entity, error) {
	var row model.Entity
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) GetEntityByKey(ctx context.Context, userID uuid.UUID, normalizedKey string) (*model.Entity, error) {
	var row model.Entity
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND normalized_key = ?", userID, normalizedKey).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListEntities returns a user's entities ordered by mention count, most
// mentioned first. entityType filters when non-empty; limit caps the scan.
func (s *Store) ListEntities(ctx context.Context, userID uuid.UUID, entityType model.EntityType, limit int) ([]model.Entity, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("mention_count DESC, created_at ASC")
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.Entity
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return rows, nil
}

func (s *Store) InsertMention(ctx context.Context, m *model.EntityMention) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to insert mention: %w", err)
	}
	return nil
}

func (s *Store) CountMentions(ctx context.Context, entityID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.EntityMention{}).
		Where("entity_id = ?", entityID).
		Count(&n).Error
	return n, err
}

// MergeEntities folds the duplicate into the canonical row in a single
// transaction: mentions re-pointed, aliases unioned, counts added, the
// duplicate deleted. Either all of it lands or none of it does.
func (s *Store) MergeEntities(ctx context.Context, userID, canonicalID, duplicateID uuid.UUID) (*model.Entity, error) {
	var merged model.Entity

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var canonical, duplicate model.Entity
		if err := tx.Where("id = ? AND user_id = ?", canonicalID, userID).First(&canonical).Error; err != nil {
			return fmt.Errorf("canonical entity: %w", err)
		}
		if err := tx.Where("id = ? AND user_id = ?", duplicateID, userID).First(&duplicate).Error; err != nil {
			return fmt.Errorf("duplicate entity: %w", err)
		}

		if err := tx.Model(&model.EntityMention{}).
			Where("entity_id = ?", duplicate.ID).
			Update("entity_id", canonical.ID).Error; err != nil {
			return fmt.Errorf("failed to reassign mentions: %w", err)
		}

		aliases := model.MergeAliases(canonical, duplicate)
		if err := tx.Model(&model.Entity{}).
			Where("id = ?", canonical.ID).
			Updates(map[string]interface{}{
				"mention_count": gorm.Expr("mention_count + ?", duplicate.MentionCount),
				"aliases":       model.AliasesJSON(aliases),
				"updated_at":    time.Now().UTC(),
			}).Error; err != nil {
			return fmt.Errorf("failed to update canonical entity: %w", err)
		}

		if err := tx.Delete(&model.Entity{}, "id = ?", duplicate.ID).Error; err != nil {
			return fmt.Errorf("failed to delete duplicate entity: %w", err)
		}

		return tx.Where("id = ?", canonical.ID).First(&merged).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("merged entities",
		"user_id", userID, "canonical_id", canonicalID, "duplicate_id", duplicateID)
	return &merged, nil
}
