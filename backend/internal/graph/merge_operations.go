package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"decision-graph/backend/internal/ontology"
)

// ============================================================================
// Merge Operations
// ============================================================================

// relation types repointed during a merge, in both directions
var mergeRelationTypes = []ontology.RelationType{
	ontology.RelIsA,
	ontology.RelPartOf,
	ontology.RelRelatedTo,
	ontology.RelDependsOn,
	ontology.RelAlternativeTo,
}

// MergeEntities folds the duplicate entity into the primary one. Incoming
// INVOLVES edges and typed relationships in both directions are repointed
// with MERGE so replaying a partially applied merge is safe, then the
// duplicate's name and aliases are absorbed and the node deleted.
func (r *Repository) MergeEntities(ctx context.Context, primaryID, duplicateID string) error {
	if primaryID == duplicateID {
		return fmt.Errorf("cannot merge entity %s into itself", primaryID)
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	// Step 1: repoint INVOLVES edges onto the primary
	repointInvolves := `
		MATCH (primary:Entity {id: $primaryID})
		MATCH (dup:Entity {id: $duplicateID})
		OPTIONAL MATCH (d:DecisionTrace)-[old:INVOLVES]->(dup)
		FOREACH (_ IN CASE WHEN d IS NOT NULL THEN [1] ELSE [] END |
			MERGE (d)-[:INVOLVES]->(primary)
		)
	`
	params := map[string]interface{}{
		"primaryID":   primaryID,
		"duplicateID": duplicateID,
	}
	if _, err := session.Run(ctx, repointInvolves, params); err != nil {
		return fmt.Errorf("failed to repoint involvement edges: %w", err)
	}

	// Step 2: repoint typed relationships in both directions
	for _, relType := range mergeRelationTypes {
		outgoing := fmt.Sprintf(`
			MATCH (dup:Entity {id: $duplicateID})-[:%s]->(other)
			WHERE other.id <> $primaryID
			MATCH (primary:Entity {id: $primaryID})
			MERGE (primary)-[:%s]->(other)
		`, relType, relType)
		if _, err := session.Run(ctx, outgoing, params); err != nil {
			return fmt.Errorf("failed to repoint outgoing %s edges: %w", relType, err)
		}

		incoming := fmt.Sprintf(`
			MATCH (other)-[:%s]->(dup:Entity {id: $duplicateID})
			WHERE other.id <> $primaryID
			MATCH (primary:Entity {id: $primaryID})
			MERGE (other)-[:%s]->(primary)
		`, relType, relType)
		if _, err := session.Run(ctx, incoming, params); err != nil {
			return fmt.Errorf("failed to repoint incoming %s edges: %w", relType, err)
		}
	}

	// Step 3: absorb the duplicate's name and aliases, then delete it
	absorb := `
		MATCH (primary:Entity {id: $primaryID})
		MATCH (dup:Entity {id: $duplicateID})
		WITH primary, dup,
		     [a IN [dup.name] + COALESCE(dup.aliases, [])
		      WHERE NOT a IN COALESCE(primary.aliases, []) AND a <> primary.name] as newAliases
		SET primary.aliases = COALESCE(primary.aliases, []) + newAliases
		DETACH DELETE dup
	`
	if _, err := session.Run(ctx, absorb, params); err != nil {
		return fmt.Errorf("failed to absorb duplicate entity: %w", err)
	}

	r.logger.Info("Entities merged",
		zap.String("primary_id", primaryID),
		zap.String("duplicate_id", duplicateID),
	)
	return nil
}
