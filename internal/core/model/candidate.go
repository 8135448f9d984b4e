package model

import "github.com/google/uuid"

// TranscriptSegment is one diarized utterance handed to reconciliation.
type TranscriptSegment struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start,omitempty"`
	End     float64 `json:"end,omitempty"`
}

// CandidateEntity is the extraction service's view of one entity occurrence
// set within a transcript.
type CandidateEntity struct {
	Type            string  `json:"type"`
	Value           string  `json:"value"`
	NormalizedValue string  `json:"normalized_value,omitempty"`
	Mentions        int     `json:"mentions"`
	Context         string  `json:"context,omitempty"`
	Confidence      float64 `json:"confidence"`
	StartOffset     *int    `json:"start_offset,omitempty"`
	EndOffset       *int    `json:"end_offset,omitempty"`
}

// CandidateRelationship is an extracted edge candidate. Endpoints are
// referenced by value, not id; resolution happens at commit time.
type CandidateRelationship struct {
	SourceValue      string  `json:"source_value"`
	TargetValue      string  `json:"target_value"`
	RelationshipType string  `json:"relationship_type"`
	Confidence       float64 `json:"confidence"`
	Context          string  `json:"context,omitempty"`
}

// DuplicateMatch is one suspected duplicate of a group's canonical entity,
// with the best-scoring detection method's evidence attached.
type DuplicateMatch struct {
	Entity Entity  `json:"entity"`
	Score  float64 `json:"score"`
	Method string  `json:"method"`
	Reason string  `json:"reason"`
}

// DuplicateGroup is a transitively-linked cluster of suspected duplicates.
// Canonical is the member with the highest mention count.
type DuplicateGroup struct {
	Canonical  Entity           `json:"canonical"`
	Duplicates []DuplicateMatch `json:"duplicates"`
}

// CommitOutcome is the committer's disposition for one relationship
// candidate.
type CommitOutcome string

const (
	OutcomeCommitted    CommitOutcome = "committed"
	OutcomeSuggested    CommitOutcome = "suggested"
	OutcomeRejectedType CommitOutcome = "rejected_type"
	OutcomeSkipped      CommitOutcome = "skipped"
)

// ReconcileSummary reports what one reconciliation run did. Failed
// candidates are counted, never fatal to the batch.
type ReconcileSummary struct {
	SessionID              uuid.UUID `json:"session_id"`
	EntitiesResolved       int       `json:"entities_resolved"`
	EntitiesFailed         int       `json:"entities_failed"`
	RelationshipsCommitted int       `json:"relationships_committed"`
	RelationshipsSuggested int       `json:"relationships_suggested"`
	RelationshipsSkipped   int       `json:"relationships_skipped"`
	RelationshipsRejected  int       `json:"relationships_rejected"`
}
