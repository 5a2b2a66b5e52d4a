package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// ============================================================================
// Similarity Operations
// ============================================================================

// FindSimilarDecisions returns the top five decisions above the similarity
// threshold using the GDS cosine function. Errors when GDS is not installed;
// callers fall back to ListDecisionEmbeddings plus in-process scoring.
func (r *Repository) FindSimilarDecisions(ctx context.Context, decisionID string, threshold float64, ownerID string) ([]SimilarDecision, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d1:DecisionTrace {id: $id})
		WHERE d1.embedding IS NOT NULL
		MATCH (d2:DecisionTrace)
		WHERE d2.id <> d1.id
		AND d2.embedding IS NOT NULL
		AND %s
		WITH d2, gds.similarity.cosine(d1.embedding, d2.embedding) as score
		WHERE score > $threshold
		RETURN d2.id as id, score
		ORDER BY score DESC
		LIMIT 5
	`, ownerClause("d2"))

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":        decisionID,
		"threshold": threshold,
		"ownerID":   ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("gds decision similarity failed: %w", err)
	}

	var similar []SimilarDecision
	for result.Next(ctx) {
		record := result.Record()
		similar = append(similar, SimilarDecision{
			ID:    getStringFromRecord(record, "id"),
			Score: getFloat64FromRecord(record, "score"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("gds decision similarity failed: %w", err)
	}
	return similar, nil
}

// ListDecisionEmbeddings loads stored decision embeddings, excluding the
// given decision, for brute-force similarity scoring.
func (r *Repository) ListDecisionEmbeddings(ctx context.Context, excludeID, ownerID string, limit int) ([]DecisionEmbedding, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d:DecisionTrace)
		WHERE d.id <> $excludeID
		AND d.embedding IS NOT NULL
		AND %s
		RETURN d.id as id, d.embedding as embedding
		LIMIT $limit
	`, ownerClause("d"))

	result, err := session.Run(ctx, query, map[string]interface{}{
		"excludeID": excludeID,
		"ownerID":   ownerID,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list decision embeddings: %w", err)
	}

	var embeddings []DecisionEmbedding
	for result.Next(ctx) {
		record := result.Record()
		embeddings = append(embeddings, DecisionEmbedding{
			ID:        getStringFromRecord(record, "id"),
			Embedding: getFloat64SliceFromRecord(record, "embedding"),
		})
	}
	return embeddings, nil
}

// CreateSimilarityLink merges a SIMILAR_TO edge carrying the score and its
// confidence tier.
func (r *Repository) CreateSimilarityLink(ctx context.Context, fromID, toID string, score float64, tier string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (d1:DecisionTrace {id: $fromID})
		MATCH (d2:DecisionTrace {id: $toID})
		MERGE (d1)-[rel:SIMILAR_TO]->(d2)
		SET rel.score = $score,
		    rel.confidence_tier = $tier
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"fromID": fromID,
		"toID":   toID,
		"score":  score,
		"tier":   tier,
	})
	if err != nil {
		return fmt.Errorf("failed to create similarity link: %w", err)
	}
	return nil
}

// CreateInfluenceLinks merges INFLUENCED_BY edges from the given decision to
// every earlier decision sharing at least two entities with it. Returns the
// number of influencing decisions linked.
func (r *Repository) CreateInfluenceLinks(ctx context.Context, decisionID, ownerID string) (int, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (d_new:DecisionTrace {id: $id})-[:INVOLVES]->(e:Entity)<-[:INVOLVES]-(d_old:DecisionTrace)
		WHERE d_old.id <> d_new.id
		AND d_old.created_at < d_new.created_at
		AND %s
		WITH d_new, d_old, count(DISTINCT e) as shared_count
		WHERE shared_count >= 2
		MERGE (d_new)-[rel:INFLUENCED_BY]->(d_old)
		SET rel.shared_entities = shared_count
		RETURN count(d_old) as linked
	`, ownerClause("d_old"))

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":      decisionID,
		"ownerID": ownerID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create influence links: %w", err)
	}

	linked := 0
	if result.Next(ctx) {
		linked = getIntFromRecord(result.Record(), "linked")
	}
	if linked > 0 {
		r.logger.Info("Influence links created",
			zap.String("decision_id", decisionID),
			zap.Int("count", linked),
		)
	}
	return linked, nil
}
