package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"decision-graph/backend/internal/ontology"
)

// ============================================================================
// Decision Operations
// ============================================================================

// CreateDecision persists a decision trace node. created_at is stored as an
// RFC3339 string so temporal ordering works with plain string comparison in
// Cypher.
func (r *Repository) CreateDecision(ctx context.Context, decision DecisionTrace) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	createdAt := decision.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		MERGE (d:DecisionTrace {id: $id})
		SET d.trigger = $trigger,
		    d.context = $context,
		    d.options = $options,
		    d.decision = $decision,
		    d.rationale = $rationale,
		    d.confidence = $confidence,
		    d.created_at = $createdAt,
		    d.source = $source
	`
	params := map[string]interface{}{
		"id":         decision.ID,
		"trigger":    decision.Trigger,
		"context":    decision.Context,
		"options":    decision.Options,
		"decision":   decision.Decision,
		"rationale":  decision.Rationale,
		"confidence": decision.Confidence,
		"createdAt":  createdAt.Format(time.RFC3339),
		"source":     decision.Source,
	}
	if decision.OwnerID != "" {
		query += ", d.owner_id = $ownerID"
		params["ownerID"] = decision.OwnerID
	}
	if decision.ProjectName != "" {
		query += ", d.project_name = $projectName"
		params["projectName"] = decision.ProjectName
	}
	if decision.Embedding != nil {
		query += ", d.embedding = $embedding"
		params["embedding"] = decision.Embedding
	}

	if _, err := session.Run(ctx, query, params); err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}

	r.logger.Info("Decision created",
		zap.String("decision_id", decision.ID),
		zap.Float64("confidence", decision.Confidence),
	)
	return nil
}

// GetDecisionSummary fetches the fields needed to compare two decisions.
// Returns nil when the decision does not exist.
func (r *Repository) GetDecisionSummary(ctx context.Context, decisionID string) (*DecisionSummary, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (d:DecisionTrace {id: $id})
		RETURN d.id as id,
		       d.trigger as trigger,
		       d.decision as decision,
		       d.rationale as rationale,
		       d.created_at as created_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"id": decisionID})
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch decision record: %w", err)
		}
		return nil, nil
	}

	record := result.Record()
	return &DecisionSummary{
		ID:        getStringFromRecord(record, "id"),
		Trigger:   getStringFromRecord(record, "trigger"),
		Decision:  getStringFromRecord(record, "decision"),
		Rationale: getStringFromRecord(record, "rationale"),
		CreatedAt: getStringFromRecord(record, "created_at"),
	}, nil
}

// CreateDecisionRelationship merges a SUPERSEDES or CONTRADICTS edge between
// two decisions. The relationship type is validated against the ontology
// before being interpolated into the query.
func (r *Repository) CreateDecisionRelationship(ctx context.Context, fromID, toID string, relType ontology.RelationType, confidence float64) error {
	if relType != ontology.RelSupersedes && relType != ontology.RelContradicts {
		return fmt.Errorf("relationship type %s is not valid between decisions", relType)
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (from:DecisionTrace {id: $fromID})
		MATCH (to:DecisionTrace {id: $toID})
		MERGE (from)-[rel:%s]->(to)
		SET rel.confidence = $confidence
	`, relType)

	_, err := session.Run(ctx, query, map[string]interface{}{
		"fromID":     fromID,
		"toID":       toID,
		"confidence": confidence,
	})
	if err != nil {
		return fmt.Errorf("failed to create decision relationship: %w", err)
	}

	r.logger.Info("Decision relationship created",
		zap.String("from", fromID),
		zap.String("to", toID),
		zap.String("type", string(relType)),
	)
	return nil
}
