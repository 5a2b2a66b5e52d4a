package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"decision-graph/backend/internal/ontology"
)

// ============================================================================
// Entity Lookup Operations
//
// Lookup queries come in two shapes: owner-scoped (entities reachable from
// the owner's decisions, plus unowned legacy data) and global. Callers run
// the scoped variant first and fall back to global, so resolution prefers
// the caller's own vocabulary.
// ============================================================================

// FindEntityByName finds an entity by exact case-insensitive name match.
// Returns nil when no entity matches.
func (r *Repository) FindEntityByName(ctx context.Context, normalizedName, ownerID string) (*EntityRef, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity)
		WHERE toLower(e.name) = $name
		RETURN e.id as id, e.name as name, e.type as type
		LIMIT 1
	`
	if ownerID != "" {
		query = `
			MATCH (d:DecisionTrace)-[:INVOLVES]->(e:Entity)
			WHERE (d.owner_id = $ownerID OR d.owner_id IS NULL)
			AND toLower(e.name) = $name
			RETURN DISTINCT e.id as id, e.name as name, e.type as type
			LIMIT 1
		`
	}

	result, err := session.Run(ctx, query, map[string]interface{}{
		"name":    normalizedName,
		"ownerID": ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find entity by name: %w", err)
	}

	return entityRefFromResult(ctx, result)
}

// FindEntityByAlias finds an entity whose aliases contain the name
// (case-insensitive). Returns nil when no entity matches.
func (r *Repository) FindEntityByAlias(ctx context.Context, normalizedName, ownerID string) (*EntityRef, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity)
		WHERE ANY(alias IN COALESCE(e.aliases, []) WHERE toLower(alias) = $name)
		RETURN e.id as id, e.name as name, e.type as type
		LIMIT 1
	`
	if ownerID != "" {
		query = `
			MATCH (d:DecisionTrace)-[:INVOLVES]->(e:Entity)
			WHERE (d.owner_id = $ownerID OR d.owner_id IS NULL)
			AND ANY(alias IN COALESCE(e.aliases, []) WHERE toLower(alias) = $name)
			RETURN DISTINCT e.id as id, e.name as name, e.type as type
			LIMIT 1
		`
	}

	result, err := session.Run(ctx, query, map[string]interface{}{
		"name":    normalizedName,
		"ownerID": ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find entity by alias: %w", err)
	}

	return entityRefFromResult(ctx, result)
}

// FullTextEntityCandidates retrieves fuzzy-match candidates from the
// entity_fulltext index using a prefix wildcard. Errors when the index does
// not exist; callers fall back to ListEntityCandidates.
func (r *Repository) FullTextEntityCandidates(ctx context.Context, searchTerm, ownerID string, limit int) ([]EntityRef, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		CALL db.index.fulltext.queryNodes('entity_fulltext', $searchTerm)
		YIELD node, score
		RETURN node.id as id, node.name as name, node.type as type
		LIMIT $limit
	`
	if ownerID != "" {
		query = `
			CALL db.index.fulltext.queryNodes('entity_fulltext', $searchTerm)
			YIELD node, score
			MATCH (d:DecisionTrace)-[:INVOLVES]->(node)
			WHERE d.owner_id = $ownerID OR d.owner_id IS NULL
			RETURN DISTINCT node.id as id, node.name as name, node.type as type
			LIMIT $limit
		`
	}

	result, err := session.Run(ctx, query, map[string]interface{}{
		"searchTerm": searchTerm + "*",
		"ownerID":    ownerID,
		"limit":      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fulltext candidate search failed: %w", err)
	}

	return entityRefsFromResult(ctx, result)
}

// ListEntityCandidates pages through entities for bounded fuzzy matching
func (r *Repository) ListEntityCandidates(ctx context.Context, ownerID string, offset, limit int) ([]EntityRef, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity)
		RETURN e.id as id, e.name as name, e.type as type
		SKIP $offset
		LIMIT $limit
	`
	if ownerID != "" {
		query = `
			MATCH (d:DecisionTrace)-[:INVOLVES]->(e:Entity)
			WHERE d.owner_id = $ownerID OR d.owner_id IS NULL
			RETURN DISTINCT e.id as id, e.name as name, e.type as type
			SKIP $offset
			LIMIT $limit
		`
	}

	result, err := session.Run(ctx, query, map[string]interface{}{
		"ownerID": ownerID,
		"offset":  offset,
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entity candidates: %w", err)
	}

	return entityRefsFromResult(ctx, result)
}

// FindEntityByEmbeddingGDS finds the best entity match above the threshold
// using the GDS cosine function. Errors when GDS is not installed; callers
// fall back to ListEntityEmbeddings plus in-process scoring.
func (r *Repository) FindEntityByEmbeddingGDS(ctx context.Context, embedding []float64, threshold float64, ownerID string) (*EmbeddingMatch, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity)
		WHERE e.embedding IS NOT NULL
		WITH e, gds.similarity.cosine(e.embedding, $embedding) as similarity
		WHERE similarity > $threshold
		RETURN e.id as id, e.name as name, e.type as type, similarity
		ORDER BY similarity DESC
		LIMIT 1
	`
	if ownerID != "" {
		query = `
			MATCH (d:DecisionTrace)-[:INVOLVES]->(e:Entity)
			WHERE (d.owner_id = $ownerID OR d.owner_id IS NULL)
			AND e.embedding IS NOT NULL
			WITH DISTINCT e, gds.similarity.cosine(e.embedding, $embedding) as similarity
			WHERE similarity > $threshold
			RETURN e.id as id, e.name as name, e.type as type, similarity
			ORDER BY similarity DESC
			LIMIT 1
		`
	}

	result, err := session.Run(ctx, query, map[string]interface{}{
		"embedding": embedding,
		"threshold": threshold,
		"ownerID":   ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("gds similarity query failed: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("gds similarity query failed: %w", err)
		}
		return nil, nil
	}

	record := result.Record()
	return &EmbeddingMatch{
		ID:         getStringFromRecord(record, "id"),
		Name:       getStringFromRecord(record, "name"),
		Type:       getStringFromRecord(record, "type"),
		Similarity: getFloat64FromRecord(record, "similarity"),
	}, nil
}

// ListEntityEmbeddings loads entity embeddings for bounded brute-force
// similarity scoring.
func (r *Repository) ListEntityEmbeddings(ctx context.Context, ownerID string, limit int) ([]EntityCandidate, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity)
		WHERE e.embedding IS NOT NULL
		RETURN e.id as id, e.name as name, e.type as type, e.embedding as embedding
		LIMIT $limit
	`
	if ownerID != "" {
		query = `
			MATCH (d:DecisionTrace)-[:INVOLVES]->(e:Entity)
			WHERE (d.owner_id = $ownerID OR d.owner_id IS NULL)
			AND e.embedding IS NOT NULL
			RETURN DISTINCT e.id as id, e.name as name, e.type as type, e.embedding as embedding
			LIMIT $limit
		`
	}

	result, err := session.Run(ctx, query, map[string]interface{}{
		"ownerID": ownerID,
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entity embeddings: %w", err)
	}

	var candidates []EntityCandidate
	for result.Next(ctx) {
		record := result.Record()
		candidates = append(candidates, EntityCandidate{
			ID:        getStringFromRecord(record, "id"),
			Name:      getStringFromRecord(record, "name"),
			Type:      getStringFromRecord(record, "type"),
			Embedding: getFloat64SliceFromRecord(record, "embedding"),
		})
	}

	return candidates, nil
}

// ============================================================================
// Entity Write Operations
// ============================================================================

// CreateEntityWithInvolvement creates an entity node and its INVOLVES edge
// from the given decision in one write. The entity is created with MERGE on
// id so a replayed write is idempotent.
func (r *Repository) CreateEntityWithInvolvement(ctx context.Context, entity Entity, decisionID string, weight float64) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (e:Entity {id: $id})
		SET e.name = $name,
		    e.type = $type,
		    e.aliases = $aliases
		WITH e
		MATCH (d:DecisionTrace {id: $decisionID})
		MERGE (d)-[rel:INVOLVES]->(e)
		SET rel.weight = $weight
	`
	params := map[string]interface{}{
		"id":         entity.ID,
		"name":       entity.Name,
		"type":       entity.Type,
		"aliases":    entity.Aliases,
		"decisionID": decisionID,
		"weight":     weight,
	}
	if entity.Embedding != nil {
		query = `
			MERGE (e:Entity {id: $id})
			SET e.name = $name,
			    e.type = $type,
			    e.aliases = $aliases,
			    e.embedding = $embedding
			WITH e
			MATCH (d:DecisionTrace {id: $decisionID})
			MERGE (d)-[rel:INVOLVES]->(e)
			SET rel.weight = $weight
		`
		params["embedding"] = entity.Embedding
	}

	if _, err := session.Run(ctx, query, params); err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}

	r.logger.Info("Entity created",
		zap.String("entity_id", entity.ID),
		zap.String("name", entity.Name),
		zap.String("type", entity.Type),
	)
	return nil
}

// LinkEntityToDecision creates an INVOLVES edge to an existing entity
func (r *Repository) LinkEntityToDecision(ctx context.Context, entityID, decisionID string, weight float64) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity {id: $entityID})
		MATCH (d:DecisionTrace {id: $decisionID})
		MERGE (d)-[rel:INVOLVES]->(e)
		SET rel.weight = $weight
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"entityID":   entityID,
		"decisionID": decisionID,
		"weight":     weight,
	})
	if err != nil {
		return fmt.Errorf("failed to link entity to decision: %w", err)
	}
	return nil
}

// AddEntityAlias appends an alias to an entity
func (r *Repository) AddEntityAlias(ctx context.Context, entityID, alias string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity {id: $entityID})
		WHERE NOT $alias IN COALESCE(e.aliases, [])
		SET e.aliases = COALESCE(e.aliases, []) + $alias
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"entityID": entityID,
		"alias":    alias,
	})
	if err != nil {
		return fmt.Errorf("failed to add alias: %w", err)
	}
	return nil
}

// SetEntityEmbedding stores an embedding on an entity
func (r *Repository) SetEntityEmbedding(ctx context.Context, entityID string, embedding []float64) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity {id: $entityID})
		SET e.embedding = $embedding
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"entityID":  entityID,
		"embedding": embedding,
	})
	if err != nil {
		return fmt.Errorf("failed to set entity embedding: %w", err)
	}
	return nil
}

// CreateEntityRelationship merges a typed edge between two entities located
// by name or alias. The relationship type is validated against the ontology
// before being interpolated into the query.
func (r *Repository) CreateEntityRelationship(ctx context.Context, fromName, toName string, relType ontology.RelationType, confidence float64) error {
	if !ontology.EntityOnlyRelations[relType] {
		return fmt.Errorf("relationship type %s is not valid between entities", relType)
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (e1:Entity)
		WHERE toLower(e1.name) = toLower($fromName)
		   OR ANY(alias IN COALESCE(e1.aliases, []) WHERE toLower(alias) = toLower($fromName))
		MATCH (e2:Entity)
		WHERE toLower(e2.name) = toLower($toName)
		   OR ANY(alias IN COALESCE(e2.aliases, []) WHERE toLower(alias) = toLower($toName))
		WITH e1, e2
		WHERE e1 <> e2
		MERGE (e1)-[rel:%s]->(e2)
		SET rel.confidence = $confidence
	`, relType)

	_, err := session.Run(ctx, query, map[string]interface{}{
		"fromName":   fromName,
		"toName":     toName,
		"confidence": confidence,
	})
	if err != nil {
		return fmt.Errorf("failed to create entity relationship: %w", err)
	}
	return nil
}

// ============================================================================
// Result Helpers
// ============================================================================

func entityRefFromResult(ctx context.Context, result neo4j.ResultWithContext) (*EntityRef, error) {
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch record: %w", err)
		}
		return nil, nil
	}
	record := result.Record()
	return &EntityRef{
		ID:   getStringFromRecord(record, "id"),
		Name: getStringFromRecord(record, "name"),
		Type: getStringFromRecord(record, "type"),
	}, nil
}

func entityRefsFromResult(ctx context.Context, result neo4j.ResultWithContext) ([]EntityRef, error) {
	var refs []EntityRef
	for result.Next(ctx) {
		record := result.Record()
		refs = append(refs, EntityRef{
			ID:   getStringFromRecord(record, "id"),
			Name: getStringFromRecord(record, "name"),
			Type: getStringFromRecord(record, "type"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	return refs, nil
}
