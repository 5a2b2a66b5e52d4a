package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// ============================================================================
// Validation Queries
//
// These back the graph consistency checks. Each query is scoped to entities
// reachable from the owner's decisions so one caller's modeling problems do
// not surface in another caller's report.
// ============================================================================

// FindDependencyCycles finds circular DEPENDS_ON chains of length 2 to 10
func (r *Repository) FindDependencyCycles(ctx context.Context, ownerID string) ([]Cycle, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d:DecisionTrace)-[:INVOLVES]->(start:Entity)
		WHERE %s
		WITH DISTINCT start
		MATCH path = (start)-[:DEPENDS_ON*2..10]->(start)
		WITH nodes(path) as cycle_nodes
		RETURN [n IN cycle_nodes | n.name] as names,
		       [n IN cycle_nodes | n.id] as ids
		LIMIT 10
	`, ownerClause("d"))

	result, err := session.Run(ctx, query, map[string]interface{}{"ownerID": ownerID})
	if err != nil {
		return nil, fmt.Errorf("cycle detection failed: %w", err)
	}

	var cycles []Cycle
	for result.Next(ctx) {
		record := result.Record()
		cycles = append(cycles, Cycle{
			Names: getStringSliceFromRecord(record, "names"),
			IDs:   getStringSliceFromRecord(record, "ids"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("cycle detection failed: %w", err)
	}
	return cycles, nil
}

// FindOrphanEntities finds involved entities with no typed relationship to
// any other entity.
func (r *Repository) FindOrphanEntities(ctx context.Context, ownerID string) ([]EntityRef, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d:DecisionTrace)-[:INVOLVES]->(e:Entity)
		WHERE %s
		WITH DISTINCT e
		WHERE NOT (e)-[:IS_A|PART_OF|RELATED_TO|DEPENDS_ON|ALTERNATIVE_TO]-()
		RETURN e.id as id, e.name as name, e.type as type
	`, ownerClause("d"))

	result, err := session.Run(ctx, query, map[string]interface{}{"ownerID": ownerID})
	if err != nil {
		return nil, fmt.Errorf("orphan check failed: %w", err)
	}

	return entityRefsFromResult(ctx, result)
}

// FindLowConfidenceRelationships finds edges below the confidence threshold,
// weakest first.
func (r *Repository) FindLowConfidenceRelationships(ctx context.Context, threshold float64, ownerID string) ([]LowConfidenceRelationship, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d:DecisionTrace)-[r]->(b)
		WHERE %s
		AND r.confidence IS NOT NULL AND r.confidence < $threshold
		RETURN d.id as source_id,
		       COALESCE(d.trigger, 'Decision') as source_name,
		       b.id as target_id,
		       COALESCE(b.name, b.trigger) as target_name,
		       type(r) as rel_type,
		       r.confidence as confidence
		ORDER BY r.confidence ASC
		LIMIT 50
	`, ownerClause("d"))

	result, err := session.Run(ctx, query, map[string]interface{}{
		"threshold": threshold,
		"ownerID":   ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("low confidence check failed: %w", err)
	}

	var rels []LowConfidenceRelationship
	for result.Next(ctx) {
		record := result.Record()
		rels = append(rels, LowConfidenceRelationship{
			SourceID:   getStringFromRecord(record, "source_id"),
			SourceName: getStringFromRecord(record, "source_name"),
			TargetID:   getStringFromRecord(record, "target_id"),
			TargetName: getStringFromRecord(record, "target_name"),
			RelType:    getStringFromRecord(record, "rel_type"),
			Confidence: getFloat64FromRecord(record, "confidence"),
		})
	}
	return rels, nil
}

// CountDecisionsMissingEmbedding counts decisions without a stored embedding
func (r *Repository) CountDecisionsMissingEmbedding(ctx context.Context, ownerID string) (int, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d:DecisionTrace)
		WHERE %s
		AND d.embedding IS NULL
		RETURN count(d) as count
	`, ownerClause("d"))

	result, err := session.Run(ctx, query, map[string]interface{}{"ownerID": ownerID})
	if err != nil {
		return 0, fmt.Errorf("missing embedding count failed: %w", err)
	}

	if result.Next(ctx) {
		return getIntFromRecord(result.Record(), "count"), nil
	}
	return 0, result.Err()
}

// CountEntitiesMissingEmbedding counts involved entities without a stored
// embedding.
func (r *Repository) CountEntitiesMissingEmbedding(ctx context.Context, ownerID string) (int, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d:DecisionTrace)-[:INVOLVES]->(e:Entity)
		WHERE %s
		AND e.embedding IS NULL
		RETURN count(DISTINCT e) as count
	`, ownerClause("d"))

	result, err := session.Run(ctx, query, map[string]interface{}{"ownerID": ownerID})
	if err != nil {
		return 0, fmt.Errorf("missing embedding count failed: %w", err)
	}

	if result.Next(ctx) {
		return getIntFromRecord(result.Record(), "count"), nil
	}
	return 0, result.Err()
}

// FindSelfReferentialEdges finds decisions with an edge pointing back to
// themselves.
func (r *Repository) FindSelfReferentialEdges(ctx context.Context, ownerID string) ([]SelfReferentialEdge, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d:DecisionTrace)-[r]->(d)
		WHERE %s
		RETURN d.id as id,
		       d.trigger as name,
		       type(r) as rel_type
	`, ownerClause("d"))

	result, err := session.Run(ctx, query, map[string]interface{}{"ownerID": ownerID})
	if err != nil {
		return nil, fmt.Errorf("self-reference check failed: %w", err)
	}

	var edges []SelfReferentialEdge
	for result.Next(ctx) {
		record := result.Record()
		edges = append(edges, SelfReferentialEdge{
			NodeID:  getStringFromRecord(record, "id"),
			Name:    getStringFromRecord(record, "name"),
			RelType: getStringFromRecord(record, "rel_type"),
		})
	}
	return edges, nil
}

// FindEntityRelationsBetweenDecisions finds entity-only relationship types
// used between two decision nodes.
func (r *Repository) FindEntityRelationsBetweenDecisions(ctx context.Context, ownerID string) ([]DecisionPairEdge, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d1:DecisionTrace)-[r]->(d2:DecisionTrace)
		WHERE %s
		AND type(r) IN ['IS_A', 'PART_OF', 'DEPENDS_ON', 'ALTERNATIVE_TO']
		RETURN d1.id as from_id, d1.trigger as from_trigger,
		       d2.id as to_id, d2.trigger as to_trigger,
		       type(r) as rel_type
	`, ownerClause("d1"))

	result, err := session.Run(ctx, query, map[string]interface{}{"ownerID": ownerID})
	if err != nil {
		return nil, fmt.Errorf("decision relationship check failed: %w", err)
	}

	var edges []DecisionPairEdge
	for result.Next(ctx) {
		record := result.Record()
		edges = append(edges, DecisionPairEdge{
			FromID:      getStringFromRecord(record, "from_id"),
			FromTrigger: getStringFromRecord(record, "from_trigger"),
			ToID:        getStringFromRecord(record, "to_id"),
			ToTrigger:   getStringFromRecord(record, "to_trigger"),
			RelType:     getStringFromRecord(record, "rel_type"),
		})
	}
	return edges, nil
}

// DeleteSelfReferentialEdges removes edges from a decision to itself and
// returns how many were deleted.
func (r *Repository) DeleteSelfReferentialEdges(ctx context.Context, ownerID string) (int, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d:DecisionTrace)-[r]->(d)
		WHERE %s
		DELETE r
		RETURN count(r) as count
	`, ownerClause("d"))

	result, err := session.Run(ctx, query, map[string]interface{}{"ownerID": ownerID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete self-referential edges: %w", err)
	}

	removed := 0
	if result.Next(ctx) {
		removed = getIntFromRecord(result.Record(), "count")
	}
	if removed > 0 {
		r.logger.Info("Self-referential edges removed", zap.Int("count", removed))
	}
	return removed, nil
}
