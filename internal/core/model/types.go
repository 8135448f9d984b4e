package model

import "strings"

// EntityType classifies what an extracted entity refers to. The set is
// closed: every member has a graph label in entityGraphLabels, and the
// driver refuses to build node queries for anything else.
type EntityType string

const (
	EntityTypePerson       EntityType = "person"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeProject      EntityType = "project"
	EntityTypeTopic        EntityType = "topic"
	EntityTypeTechnology   EntityType = "technology"
	EntityTypeProduct      EntityType = "product"
	EntityTypeLocation     EntityType = "location"
	EntityTypeDate         EntityType = "date"
	EntityTypeOther        EntityType = "other"
)

var entityGraphLabels = map[EntityType]string{
	EntityTypePerson:       "Person",
	EntityTypeOrganization: "Organization",
	EntityTypeProject:      "Project",
	EntityTypeTopic:        "Topic",
	EntityTypeTechnology:   "Technology",
	EntityTypeProduct:      "Product",
	EntityTypeLocation:     "Location",
	EntityTypeDate:         "Date",
	EntityTypeOther:        "Other",
}

func (t EntityType) Valid() bool {
	_, ok := entityGraphLabels[t]
	return ok
}

// GraphLabel returns the node label for a valid entity type. The bool is
// false for anything outside the enum, so callers cannot interpolate an
// unvetted string into Cypher.
func (t EntityType) GraphLabel() (string, bool) {
	label, ok := entityGraphLabels[t]
	return label, ok
}

// ParseEntityType maps free-form extractor output onto the enum. Unknown
// classes collapse to "other" rather than failing the candidate.
func ParseEntityType(s string) EntityType {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return EntityTypeOther
}

// RelationshipType names an edge between two entities. The whitelist is
// closed for the same reason as EntityType: the validated value doubles as
// the Cypher edge label.
type RelationshipType string

const (
	RelWorksAt          RelationshipType = "WORKS_AT"
	RelManages          RelationshipType = "MANAGES"
	RelCollaboratesWith RelationshipType = "COLLABORATES_WITH"
	RelAssignedTo       RelationshipType = "ASSIGNED_TO"
	RelReportsTo        RelationshipType = "REPORTS_TO"
	RelUses             RelationshipType = "USES"
	RelRelatedTo        RelationshipType = "RELATED_TO"
	RelDependsOn        RelationshipType = "DEPENDS_ON"
	RelLocatedIn        RelationshipType = "LOCATED_IN"
	RelScheduledFor     RelationshipType = "SCHEDULED_FOR"
	RelCreatedIn        RelationshipType = "CREATED_IN"
)

var relationshipEdgeLabels = map[RelationshipType]string{
	RelWorksAt:          "WORKS_AT",
	RelManages:          "MANAGES",
	RelCollaboratesWith: "COLLABORATES_WITH",
	RelAssignedTo:       "ASSIGNED_TO",
	RelReportsTo:        "REPORTS_TO",
	RelUses:             "USES",
	RelRelatedTo:        "RELATED_TO",
	RelDependsOn:        "DEPENDS_ON",
	RelLocatedIn:        "LOCATED_IN",
	RelScheduledFor:     "SCHEDULED_FOR",
	RelCreatedIn:        "CREATED_IN",
}

func (t RelationshipType) Valid() bool {
	_, ok := relationshipEdgeLabels[t]
	return ok
}

// EdgeLabel returns the Cypher edge type for a whitelisted relationship.
func (t RelationshipType) EdgeLabel() (string, bool) {
	label, ok := relationshipEdgeLabels[t]
	return label, ok
}

func ParseRelationshipType(s string) (RelationshipType, bool) {
	t := RelationshipType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// AllRelationshipTypes returns the full whitelist. Deployments may narrow
// this via config but can never extend it past the enum.
func AllRelationshipTypes() []RelationshipType {
	return []RelationshipType{
		RelWorksAt, RelManages, RelCollaboratesWith, RelAssignedTo,
		RelReportsTo, RelUses, RelRelatedTo, RelDependsOn,
		RelLocatedIn, RelScheduledFor, RelCreatedIn,
	}
}

// Provenance records how a graph edge came to exist.
type Provenance string

const (
	ProvenanceAI           Provenance = "ai"
	ProvenanceUserApproved Provenance = "user_approved"
	ProvenanceUser         Provenance = "user"
	ProvenanceInferred     Provenance = "inferred"
)

// SuggestionStatus is the review state of a pending relationship.
// pending is the only non-terminal state.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
)

func (s SuggestionStatus) Terminal() bool {
	return s == SuggestionApproved || s == SuggestionRejected
}
