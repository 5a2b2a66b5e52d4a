// Package validator runs structural consistency checks over the knowledge
// graph and applies a small set of safe automatic fixes.
//
// All checks are scoped to the caller's reachable subgraph: their own
// decisions plus unowned legacy data. Checks run concurrently; a failing
// check logs and contributes nothing rather than failing the whole report.
package validator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"decision-graph/backend/internal/graph"
	"decision-graph/backend/internal/ontology"
	"decision-graph/backend/internal/similarity"
	"decision-graph/backend/pkg/logger"
)

// Severity ranks how urgently an issue needs attention
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IssueType names a category of validation issue
type IssueType string

const (
	IssueCircularDependency IssueType = "circular_dependency"
	IssueOrphanEntity       IssueType = "orphan_entity"
	IssueLowConfidence      IssueType = "low_confidence_relationship"
	IssueDuplicateEntity    IssueType = "duplicate_entity"
	IssueMissingEmbedding   IssueType = "missing_embedding"
	IssueInvalidRelation    IssueType = "invalid_relationship"
)

// Issue is one finding from a validation run
type Issue struct {
	Type            IssueType              `json:"type"`
	Severity        Severity               `json:"severity"`
	Message         string                 `json:"message"`
	AffectedNodes   []string               `json:"affected_nodes"`
	SuggestedAction string                 `json:"suggested_action,omitempty"`
	Details         map[string]interface{} `json:"details,omitempty"`
}

// Summary aggregates a validation run by severity and type
type Summary struct {
	TotalIssues int               `json:"total_issues"`
	BySeverity  map[Severity]int  `json:"by_severity"`
	ByType      map[IssueType]int `json:"by_type"`
}

// FixStats reports what AutoFix changed
type FixStats struct {
	SelfReferencesRemoved int `json:"self_references_removed"`
}

// ceiling on entities loaded for the duplicate sweep
const duplicateCandidateLimit = 500

// Store is the subset of graph operations validation reads through
type Store interface {
	FindDependencyCycles(ctx context.Context, ownerID string) ([]graph.Cycle, error)
	FindOrphanEntities(ctx context.Context, ownerID string) ([]graph.EntityRef, error)
	FindLowConfidenceRelationships(ctx context.Context, threshold float64, ownerID string) ([]graph.LowConfidenceRelationship, error)
	ListEntityCandidates(ctx context.Context, ownerID string, offset, limit int) ([]graph.EntityRef, error)
	CountDecisionsMissingEmbedding(ctx context.Context, ownerID string) (int, error)
	CountEntitiesMissingEmbedding(ctx context.Context, ownerID string) (int, error)
	FindSelfReferentialEdges(ctx context.Context, ownerID string) ([]graph.SelfReferentialEdge, error)
	FindEntityRelationsBetweenDecisions(ctx context.Context, ownerID string) ([]graph.DecisionPairEdge, error)
	DeleteSelfReferentialEdges(ctx context.Context, ownerID string) (int, error)
}

// Validator runs the consistency checks
type Validator struct {
	store Store
	// duplicate pairs need at least this fuzzy ratio, on the 0-100 scale
	fuzzyThreshold int
	// edges below this confidence are reported
	lowConfidenceThreshold float64
	logger                 *zap.Logger
}

// NewValidator creates a validator. fuzzyThreshold is on the 0-1 scale.
func NewValidator(store Store, fuzzyThreshold float64) *Validator {
	return &Validator{
		store:                  store,
		fuzzyThreshold:         int(fuzzyThreshold * 100),
		lowConfidenceThreshold: 0.5,
		logger:                 logger.Named("validator"),
	}
}

// ValidateAll runs every check concurrently and returns the combined
// findings in a stable check order.
func (v *Validator) ValidateAll(ctx context.Context, ownerID string) []Issue {
	checks := []func(context.Context, string) []Issue{
		v.checkCircularDependencies,
		v.checkOrphanEntities,
		v.checkLowConfidenceRelationships,
		v.checkDuplicateEntities,
		v.checkMissingEmbeddings,
		v.checkInvalidRelationships,
	}

	results := make([][]Issue, len(checks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			found := check(gctx, ownerID)
			mu.Lock()
			results[i] = found
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var issues []Issue
	for _, found := range results {
		issues = append(issues, found...)
	}
	return issues
}

// GetSummary aggregates a full validation run
func (v *Validator) GetSummary(ctx context.Context, ownerID string) Summary {
	issues := v.ValidateAll(ctx, ownerID)

	summary := Summary{
		TotalIssues: len(issues),
		BySeverity: map[Severity]int{
			SeverityError:   0,
			SeverityWarning: 0,
			SeverityInfo:    0,
		},
		ByType: make(map[IssueType]int),
	}
	for _, issue := range issues {
		summary.BySeverity[issue.Severity]++
		summary.ByType[issue.Type]++
	}
	return summary
}

// AutoFix applies safe fixes. It currently only removes self-referential
// edges; merging and retyping stay manual operations. A nil issueTypes
// applies every available fix.
func (v *Validator) AutoFix(ctx context.Context, ownerID string, issueTypes []IssueType) (FixStats, error) {
	stats := FixStats{}

	wanted := func(t IssueType) bool {
		if issueTypes == nil {
			return true
		}
		for _, it := range issueTypes {
			if it == t {
				return true
			}
		}
		return false
	}

	if wanted(IssueInvalidRelation) {
		removed, err := v.store.DeleteSelfReferentialEdges(ctx, ownerID)
		if err != nil {
			return stats, err
		}
		stats.SelfReferencesRemoved = removed
	}

	return stats, nil
}

func (v *Validator) checkCircularDependencies(ctx context.Context, ownerID string) []Issue {
	cycles, err := v.store.FindDependencyCycles(ctx, ownerID)
	if err != nil {
		v.logger.Error("Cycle check failed", zap.Error(err))
		return nil
	}

	var issues []Issue
	for _, cycle := range cycles {
		issues = append(issues, Issue{
			Type:            IssueCircularDependency,
			Severity:        SeverityError,
			Message:         fmt.Sprintf("Circular dependency detected: %s", joinArrow(cycle.Names)),
			AffectedNodes:   cycle.IDs,
			SuggestedAction: "Review the DEPENDS_ON relationships and remove the cycle",
			Details:         map[string]interface{}{"cycle": cycle.Names},
		})
	}
	return issues
}

func (v *Validator) checkOrphanEntities(ctx context.Context, ownerID string) []Issue {
	orphans, err := v.store.FindOrphanEntities(ctx, ownerID)
	if err != nil {
		v.logger.Error("Orphan check failed", zap.Error(err))
		return nil
	}

	var issues []Issue
	for _, orphan := range orphans {
		issues = append(issues, Issue{
			Type:            IssueOrphanEntity,
			Severity:        SeverityWarning,
			Message:         fmt.Sprintf("Orphan entity found: %s (%s)", orphan.Name, orphan.Type),
			AffectedNodes:   []string{orphan.ID},
			SuggestedAction: "Link to relevant decisions or delete if no longer needed",
			Details:         map[string]interface{}{"name": orphan.Name, "type": orphan.Type},
		})
	}
	return issues
}

func (v *Validator) checkLowConfidenceRelationships(ctx context.Context, ownerID string) []Issue {
	rels, err := v.store.FindLowConfidenceRelationships(ctx, v.lowConfidenceThreshold, ownerID)
	if err != nil {
		v.logger.Error("Low confidence check failed", zap.Error(err))
		return nil
	}

	var issues []Issue
	for _, rel := range rels {
		issues = append(issues, Issue{
			Type:     IssueLowConfidence,
			Severity: SeverityInfo,
			Message: fmt.Sprintf("Low confidence %s: %s -> %s (%.2f)",
				rel.RelType, truncate(rel.SourceName, 30), truncate(rel.TargetName, 30), rel.Confidence),
			AffectedNodes:   []string{rel.SourceID, rel.TargetID},
			SuggestedAction: "Review and verify this relationship or increase confidence",
			Details: map[string]interface{}{
				"relationship": rel.RelType,
				"confidence":   rel.Confidence,
				"source":       rel.SourceName,
				"target":       rel.TargetName,
			},
		})
	}
	return issues
}

// checkDuplicateEntities fuzzy-compares every scoped entity pair. A pair at
// 100 is an exact duplicate handled by merge, so only near matches are
// reported; known alias pairs rank higher than coincidental similarity.
func (v *Validator) checkDuplicateEntities(ctx context.Context, ownerID string) []Issue {
	entities, err := v.store.ListEntityCandidates(ctx, ownerID, 0, duplicateCandidateLimit)
	if err != nil {
		v.logger.Error("Duplicate check failed", zap.Error(err))
		return nil
	}

	var issues []Issue
	for i, e1 := range entities {
		for _, e2 := range entities[i+1:] {
			score := similarity.Ratio(
				ontology.NormalizeName(e1.Name),
				ontology.NormalizeName(e2.Name),
			)
			if score < v.fuzzyThreshold || score >= 100 {
				continue
			}

			severity := SeverityInfo
			isKnownAlias := ontology.KnownAliasPair(e1.Name, e2.Name)
			if isKnownAlias {
				severity = SeverityWarning
			}

			issues = append(issues, Issue{
				Type:     IssueDuplicateEntity,
				Severity: severity,
				Message: fmt.Sprintf("Potential duplicate: '%s' and '%s' (%d%% similar)",
					e1.Name, e2.Name, score),
				AffectedNodes:   []string{e1.ID, e2.ID},
				SuggestedAction: "Merge these entities or add one as an alias",
				Details: map[string]interface{}{
					"entity1":        e1.Name,
					"entity2":        e2.Name,
					"similarity":     score,
					"is_known_alias": isKnownAlias,
				},
			})
		}
	}
	return issues
}

func (v *Validator) checkMissingEmbeddings(ctx context.Context, ownerID string) []Issue {
	var issues []Issue

	decisionCount, err := v.store.CountDecisionsMissingEmbedding(ctx, ownerID)
	if err != nil {
		v.logger.Error("Missing embedding check failed", zap.Error(err))
	} else if decisionCount > 0 {
		issues = append(issues, Issue{
			Type:            IssueMissingEmbedding,
			Severity:        SeverityWarning,
			Message:         fmt.Sprintf("%d decisions missing embeddings", decisionCount),
			AffectedNodes:   []string{},
			SuggestedAction: "Backfill embeddings for semantic search",
			Details:         map[string]interface{}{"count": decisionCount, "type": "decision"},
		})
	}

	entityCount, err := v.store.CountEntitiesMissingEmbedding(ctx, ownerID)
	if err != nil {
		v.logger.Error("Missing embedding check failed", zap.Error(err))
	} else if entityCount > 0 {
		issues = append(issues, Issue{
			Type:            IssueMissingEmbedding,
			Severity:        SeverityInfo,
			Message:         fmt.Sprintf("%d entities missing embeddings", entityCount),
			AffectedNodes:   []string{},
			SuggestedAction: "Backfill embeddings for semantic search",
			Details:         map[string]interface{}{"count": entityCount, "type": "entity"},
		})
	}

	return issues
}

func (v *Validator) checkInvalidRelationships(ctx context.Context, ownerID string) []Issue {
	var issues []Issue

	selfRefs, err := v.store.FindSelfReferentialEdges(ctx, ownerID)
	if err != nil {
		v.logger.Error("Self-reference check failed", zap.Error(err))
	}
	for _, edge := range selfRefs {
		name := edge.Name
		if name == "" {
			name = "Decision"
		}
		issues = append(issues, Issue{
			Type:     IssueInvalidRelation,
			Severity: SeverityError,
			Message: fmt.Sprintf("Self-referential relationship: %s -%s-> itself",
				truncate(name, 30), edge.RelType),
			AffectedNodes:   []string{edge.NodeID},
			SuggestedAction: "Remove this self-referential relationship",
			Details:         map[string]interface{}{"relationship": edge.RelType},
		})
	}

	pairEdges, err := v.store.FindEntityRelationsBetweenDecisions(ctx, ownerID)
	if err != nil {
		v.logger.Error("Decision relationship check failed", zap.Error(err))
	}
	for _, edge := range pairEdges {
		fromName := edge.FromTrigger
		if fromName == "" {
			fromName = "Decision"
		}
		toName := edge.ToTrigger
		if toName == "" {
			toName = "Decision"
		}
		issues = append(issues, Issue{
			Type:     IssueInvalidRelation,
			Severity: SeverityError,
			Message: fmt.Sprintf("Entity relationship between decisions: %s -%s-> %s",
				truncate(fromName, 30), edge.RelType, truncate(toName, 30)),
			AffectedNodes:   []string{edge.FromID, edge.ToID},
			SuggestedAction: "Change to a decision relationship (SIMILAR_TO, INFLUENCED_BY, etc.) or remove",
			Details:         map[string]interface{}{"relationship": edge.RelType},
		})
	}

	return issues
}

func joinArrow(names []string) string {
	out := ""
	for i, name := range names {
		if i > 0 {
			out += " -> "
		}
		out += name
	}
	return out
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
