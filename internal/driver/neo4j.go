package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/latticehq/lattice/internal/logger"
)

type Neo4jDriver struct {
	Driver neo4j.DriverWithContext
	log    *logger.Logger
}

func NewNeo4jDriver(uri, username, password string, baseLog *logger.Logger) (*Neo4jDriver, error) {
	d, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}

	if err := d.VerifyConnectivity(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	log := baseLog.With("component", "neo4j")
	log.Info("connected to neo4j", "uri", uri)
	return &Neo4jDriver{Driver: d, log: log}, nil
}

func (d *Neo4jDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *Neo4jDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

// BuildIndices creates the constraints and lookup indexes the engine
// depends on. Failures are logged and skipped: most mean the element
// already exists.
func (d *Neo4jDriver) BuildIndices(ctx context.Context) error {
	queries := []string{
		// Entity identity is (user_id, normalized_key); the constraint backs
		// the MERGE in the node upsert.
		"CREATE CONSTRAINT entity_identity IF NOT EXISTS FOR (e:Entity) REQUIRE (e.user_id, e.normalized_key) IS UNIQUE",
		"CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE",
		"CREATE CONSTRAINT session_id IF NOT EXISTS FOR (s:Session) REQUIRE s.id IS UNIQUE",

		"CREATE INDEX entity_user_idx IF NOT EXISTS FOR (e:Entity) ON (e.user_id)",
		"CREATE INDEX entity_mention_count_idx IF NOT EXISTS FOR (e:Entity) ON (e.mention_count)",
		"CREATE INDEX session_user_idx IF NOT EXISTS FOR (s:Session) ON (s.user_id)",
		"CREATE INDEX person_user_idx IF NOT EXISTS FOR (p:Person) ON (p.user_id)",
	}

	for _, q := range queries {
		if _, err := d.ExecuteQuery(ctx, q, nil); err != nil {
			d.log.Warn("failed to create index or constraint", "query", q, "error", err)
		}
	}

	return nil
}
