package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/latticehq/lattice/internal/core/model"
)

// GetOrCreatePerson resolves a person by normalized name, creating the row
// on first sight. The upsert is conditional on (user_id, normalized_name)
// so two concurrent binders converge on one person.
func (s *Store) GetOrCreatePerson(ctx context.Context, userID uuid.UUID, displayName, normalizedName string) (*model.Person, error) {
	row := &model.Person{
		ID:             uuid.New(),
		UserID:         userID,
		NormalizedName: normalizedName,
		DisplayName:    displayName,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "normalized_name"}},
			DoNothing: true,
		}).
		Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert person: %w", err)
	}

	var out model.Person
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND normalized_name = ?", userID, normalizedName).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetPerson(ctx context.Context, userID, id uuid.UUID) (*model.Person, error) {
	var row model.Person
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertSpeakerLabel registers a diarized speaker slot for the session.
// Existing slots keep their person binding.
func (s *Store) UpsertSpeakerLabel(ctx context.Context, userID, sessionID uuid.UUID, label string) error {
	row := &model.SessionSpeaker{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		Label:     label,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "label"}},
			DoNothing: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert speaker label: %w", err)
	}
	return nil
}

func (s *Store) GetSpeaker(ctx context.Context, userID, sessionID, speakerID uuid.UUID) (*model.SessionSpeaker, error) {
	var row model.SessionSpeaker
	err := s.db.WithContext(ctx).
		Where("id = ? AND session_id = ? AND user_id = ?", speakerID, sessionID, userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// SetSpeakerPerson points a speaker slot at a person, or clears the
// binding when personID is nil.
func (s *Store) SetSpeakerPerson(ctx context.Context, speakerID uuid.UUID, personID *uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Model(&model.SessionSpeaker{}).
		Where("id = ?", speakerID).
		Updates(map[string]interface{}{
			"person_id":  personID,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set speaker person: %w", err)
	}
	return nil
}

func (s *Store) UpsertSessionPersonIndex(ctx context.Context, userID, sessionID, personID uuid.UUID) error {
	row := &model.SessionPersonIndex{
		ID:        uuid.New(),
		SessionID: sessionID,
		PersonID:  personID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "person_id"}},
			DoNothing: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert session person index: %w", err)
	}
	return nil
}

func (s *Store) DeleteSessionPersonIndex(ctx context.Context, sessionID, personID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND person_id = ?", sessionID, personID).
		Delete(&model.SessionPersonIndex{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete session person index: %w", err)
	}
	return nil
}

func (s *Store) HasSessionPersonIndex(ctx context.Context, sessionID, personID uuid.UUID) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.SessionPersonIndex{}).
		Where("session_id = ? AND person_id = ?", sessionID, personID).
		Count(&n).Error
	return n > 0, err
}

// CountSpeakersForPerson counts the speaker slots in a session still bound
// to the person. The binder's recompute rule keys off this.
func (s *Store) CountSpeakersForPerson(ctx context.Context, sessionID, personID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.SessionSpeaker{}).
		Where("session_id = ? AND person_id = ?", sessionID, personID).
		Count(&n).Error
	return n, err
}

func (s *Store) AppendSpeakerEvent(ctx context.Context, ev *model.SpeakerAssignmentEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to append speaker event: %w", err)
	}
	return nil
}
