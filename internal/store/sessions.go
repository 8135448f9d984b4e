package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/latticehq/lattice/internal/core/model"
)

func (s *Store) CreateSession(ctx context.Context, row *model.Session) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, userID, id uuid.UUID) (*model.Session, error) {
	var row model.Session
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// EnsureSession fetches the session or creates it when reconciliation
// arrives before any other writer has seen the id.
func (s *Store) EnsureSession(ctx context.Context, userID, id uuid.UUID, title, language string) (*model.Session, error) {
	row, err := s.GetSession(ctx, userID, id)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &model.Session{
		ID:       id,
		UserID:   userID,
		Title:    title,
		Language: language,
	}
	if err := s.CreateSession(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}
