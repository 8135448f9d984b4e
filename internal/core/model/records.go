package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Entity is the relational index row for one entity per user. Identity is
// (user_id, normalized_key); entity_type is deliberately outside the unique
// index so a later extraction with a different type cannot fork identity.
type Entity struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_entity_identity,unique,priority:1" json:"user_id"`
	NormalizedKey string         `gorm:"not null;index:idx_entity_identity,unique,priority:2" json:"normalized_key"`
	EntityType    EntityType     `gorm:"not null;index" json:"entity_type"`
	DisplayValue  string         `gorm:"not null" json:"display_value"`
	MentionCount  int            `gorm:"not null;default:0;index" json:"mention_count"`
	Aliases       datatypes.JSON `gorm:"type:jsonb" json:"aliases,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (Entity) TableName() string { return "entities" }

// EntityMention is one provenance record linking an entity to the session
// it was seen in. Offsets and confidence are only present on the grounded
// extraction path.
type EntityMention struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EntityID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"entity_id"`
	SessionID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"session_id"`
	Context     string     `json:"context,omitempty"`
	StartOffset *int       `json:"start_offset,omitempty"`
	EndOffset   *int       `json:"end_offset,omitempty"`
	Confidence  *float64   `json:"confidence,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
}

func (EntityMention) TableName() string { return "entity_mentions" }

// RelationshipSuggestion is a below-threshold candidate parked for human
// review. Endpoint ids are best-effort; the approve path re-resolves by
// value inside the graph store.
type RelationshipSuggestion struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	SessionID        uuid.UUID        `gorm:"type:uuid;not null;index" json:"session_id"`
	SourceValue      string           `gorm:"not null" json:"source_value"`
	TargetValue      string           `gorm:"not null" json:"target_value"`
	SourceEntityID   *uuid.UUID       `gorm:"type:uuid" json:"source_entity_id,omitempty"`
	TargetEntityID   *uuid.UUID       `gorm:"type:uuid" json:"target_entity_id,omitempty"`
	RelationshipType RelationshipType `gorm:"not null" json:"relationship_type"`
	Confidence       float64          `gorm:"not null" json:"confidence"`
	Context          string           `json:"context,omitempty"`
	Status           SuggestionStatus `gorm:"not null;default:pending;index" json:"status"`
	ReviewedAt       *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt        time.Time        `gorm:"not null" json:"created_at"`
}

func (RelationshipSuggestion) TableName() string { return "relationship_suggestions" }

// Session anchors mentions and speaker bindings. Mirrored as a graph node
// so mention edges have a target.
type Session struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Session) TableName() string { return "sessions" }

// Person is a durable identity that diarized speaker labels bind to.
type Person struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index:idx_person_identity,unique,priority:1" json:"user_id"`
	NormalizedName string    `gorm:"not null;index:idx_person_identity,unique,priority:2" json:"normalized_name"`
	DisplayName    string    `gorm:"not null" json:"display_name"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (Person) TableName() string { return "persons" }

// SessionSpeaker is one diarized speaker slot within a session. PersonID is
// nil until a user binds the slot to a person.
type SessionSpeaker struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_session_speaker,unique,priority:1" json:"session_id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Label       string     `gorm:"not null;index:idx_session_speaker,unique,priority:2" json:"label"`
	DisplayName string     `json:"display_name,omitempty"`
	PersonID    *uuid.UUID `gorm:"type:uuid;index" json:"person_id,omitempty"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (SessionSpeaker) TableName() string { return "session_speakers" }

// SessionPersonIndex is the fast-lookup row stating that a person speaks in
// a session. Invariant: the row exists iff at least one speaker in the
// session currently maps to the person.
type SessionPersonIndex struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index:idx_session_person,unique,priority:1" json:"session_id"`
	PersonID  uuid.UUID `gorm:"type:uuid;not null;index:idx_session_person,unique,priority:2" json:"person_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (SessionPersonIndex) TableName() string { return "session_person_index" }

// SpeakerAssignmentEvent is the append-only audit trail for speaker
// binding changes.
type SpeakerAssignmentEvent struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"session_id"`
	SpeakerID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"speaker_id"`
	PriorPersonID *uuid.UUID `gorm:"type:uuid" json:"prior_person_id,omitempty"`
	NewPersonID   *uuid.UUID `gorm:"type:uuid" json:"new_person_id,omitempty"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
}

func (SpeakerAssignmentEvent) TableName() string { return "speaker_assignment_events" }
