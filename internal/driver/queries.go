package driver

import (
	"fmt"

	"github.com/latticehq/lattice/internal/core/model"
)

// Queries that embed a label are built through EntityNodeUpsertQuery and
// RelationshipEdgeUpsertQuery, which accept enum values only. Everything
// the caller controls travels as a parameter; the label comes from the
// enum's total mapping, so no raw string ever reaches query text.

const (
	// Identity lives in the MERGE pattern; the type label is set only on
	// create so a later candidate with a different type cannot fork or
	// relabel the node.
	entityNodeUpsertTemplate = `
		MERGE (e:Entity {user_id: $user_id, normalized_key: $normalized_key})
		ON CREATE SET
			e:%s,
			e.id = $id,
			e.entity_type = $entity_type,
			e.display_value = $display_value,
			e.aliases = $aliases,
			e.mention_count = $mention_count,
			e.first_seen = datetime($now),
			e.created_at = datetime($now)
		ON MATCH SET
			e.mention_count = e.mention_count + $mention_count,
			e.updated_at = datetime($now)
		SET e.last_seen = datetime($now)
		RETURN e.id AS id
	`

	// Endpoints resolve by value within the user's scope, case-insensitive
	// over normalized key and display value. Zero rows back means an
	// endpoint did not resolve. Edge facts are set on create only: repeat
	// commits of the same triple keep the first writer's evidence.
	relationshipEdgeUpsertTemplate = `
		MATCH (source:Entity {user_id: $user_id})
		WHERE toLower(source.normalized_key) = toLower($source_value)
		   OR toLower(source.display_value) = toLower($source_value)
		MATCH (target:Entity {user_id: $user_id})
		WHERE toLower(target.normalized_key) = toLower($target_value)
		   OR toLower(target.display_value) = toLower($target_value)
		WITH source, target LIMIT 1
		MERGE (source)-[r:%s]->(target)
		ON CREATE SET
			r.confidence = $confidence,
			r.context = $context,
			r.provenance = $provenance,
			r.session_id = $session_id,
			r.created_at = datetime($now)
		RETURN source.id AS source_id, target.id AS target_id
	`
)

func EntityNodeUpsertQuery(entityType model.EntityType) (string, error) {
	label, ok := entityType.GraphLabel()
	if !ok {
		return "", fmt.Errorf("entity type %q has no graph label", entityType)
	}
	return fmt.Sprintf(entityNodeUpsertTemplate, label), nil
}

func RelationshipEdgeUpsertQuery(relType model.RelationshipType) (string, error) {
	label, ok := relType.EdgeLabel()
	if !ok {
		return "", fmt.Errorf("relationship type %q is not in the whitelist", relType)
	}
	return fmt.Sprintf(relationshipEdgeUpsertTemplate, label), nil
}

const (
	SessionNodeUpsertQuery = `
		MERGE (s:Session {id: $id})
		ON CREATE SET
			s.user_id = $user_id,
			s.title = $title,
			s.created_at = datetime($now)
		RETURN s.id AS id
	`

	MentionEdgeUpsertQuery = `
		MATCH (e:Entity {id: $entity_id, user_id: $user_id})
		MATCH (s:Session {id: $session_id})
		MERGE (e)-[r:MENTIONED_IN]->(s)
		ON CREATE SET
			r.context = $context,
			r.mention_count = $mention_count,
			r.created_at = datetime($now)
		ON MATCH SET
			r.mention_count = r.mention_count + $mention_count,
			r.updated_at = datetime($now)
		RETURN e.id AS id
	`

	// Graph side of a merge: mention edges move onto the kept node with
	// their counts folded, aliases and mention counts accumulate, the
	// duplicate disappears. The duplicate is optional so a retry after a
	// partial failure converges instead of erroring.
	MergeEntityNodesQuery = `
		MATCH (keep:Entity {id: $canonical_id, user_id: $user_id})
		OPTIONAL MATCH (dup:Entity {id: $duplicate_id, user_id: $user_id})
		WITH keep, dup
		OPTIONAL MATCH (dup)-[r:MENTIONED_IN]->(s:Session)
		WITH keep, dup, collect({rel: r, session: s}) AS moves
		FOREACH (m IN [x IN moves WHERE x.rel IS NOT NULL] |
			MERGE (keep)-[nr:MENTIONED_IN]->(m.session)
			ON CREATE SET nr = properties(m.rel)
			ON MATCH SET nr.mention_count = coalesce(nr.mention_count, 0) + coalesce(m.rel.mention_count, 1)
		)
		WITH keep, dup
		SET keep.aliases = coalesce(keep.aliases, [])
				+ coalesce(dup.aliases, [])
				+ CASE WHEN dup IS NULL THEN [] ELSE [dup.display_value] END,
			keep.mention_count = keep.mention_count + coalesce(dup.mention_count, 0),
			keep.updated_at = datetime($now)
		WITH keep, dup
		DETACH DELETE dup
		RETURN keep.id AS id
	`

	PersonBindingUpsertQuery = `
		MERGE (p:Person {id: $person_id})
		ON CREATE SET
			p.user_id = $user_id,
			p.display_name = $display_name,
			p.created_at = datetime($now)
		WITH p
		MATCH (s:Session {id: $session_id})
		MERGE (p)-[r:SPOKE_IN]->(s)
		ON CREATE SET r.created_at = datetime($now)
		RETURN p.id AS id
	`

	PersonBindingDeleteQuery = `
		MATCH (p:Person {id: $person_id})-[r:SPOKE_IN]->(s:Session {id: $session_id})
		DELETE r
	`

	CoOccurrenceQuery = `
		MATCH (e1:Entity {user_id: $user_id})-[:MENTIONED_IN]->(s:Session)<-[:MENTIONED_IN]-(e2:Entity {user_id: $user_id})
		WHERE e1.id < e2.id
		WITH e1, e2, count(DISTINCT s) AS shared_sessions
		WHERE shared_sessions >= $min_sessions
		RETURN e1.id AS source_id,
			e1.display_value AS source_value,
			e2.id AS target_id,
			e2.display_value AS target_value,
			shared_sessions
		ORDER BY shared_sessions DESC
		LIMIT $limit
	`

	// COLLABORATES_WITH edges inferred from shared sessions. Strength
	// tracks the current count on every run; provenance marks them as
	// derived rather than extracted or reviewed.
	InferCollaborationsQuery = `
		MATCH (p1:Entity:Person {user_id: $user_id})-[:MENTIONED_IN]->(s:Session)<-[:MENTIONED_IN]-(p2:Entity:Person {user_id: $user_id})
		WHERE p1.id < p2.id
		WITH p1, p2, count(DISTINCT s) AS shared_sessions
		WHERE shared_sessions >= $min_sessions
		MERGE (p1)-[r:COLLABORATES_WITH]->(p2)
		ON CREATE SET
			r.strength = shared_sessions,
			r.provenance = $provenance,
			r.created_at = datetime($now)
		ON MATCH SET
			r.strength = shared_sessions,
			r.updated_at = datetime($now)
		RETURN count(r) AS inferred
	`
)
