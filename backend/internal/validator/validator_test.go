package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"decision-graph/backend/internal/graph"
)

type fakeStore struct {
	cycles      []graph.Cycle
	orphans     []graph.EntityRef
	lowConf     []graph.LowConfidenceRelationship
	entities    []graph.EntityRef
	decisionGap int
	entityGap   int
	selfRefs    []graph.SelfReferentialEdge
	pairEdges   []graph.DecisionPairEdge

	cycleErr error
	deleted  int
}

func (f *fakeStore) FindDependencyCycles(ctx context.Context, ownerID string) ([]graph.Cycle, error) {
	return f.cycles, f.cycleErr
}

func (f *fakeStore) FindOrphanEntities(ctx context.Context, ownerID string) ([]graph.EntityRef, error) {
	return f.orphans, nil
}

func (f *fakeStore) FindLowConfidenceRelationships(ctx context.Context, threshold float64, ownerID string) ([]graph.LowConfidenceRelationship, error) {
	return f.lowConf, nil
}

func (f *fakeStore) ListEntityCandidates(ctx context.Context, ownerID string, offset, limit int) ([]graph.EntityRef, error) {
	return f.entities, nil
}

func (f *fakeStore) CountDecisionsMissingEmbedding(ctx context.Context, ownerID string) (int, error) {
	return f.decisionGap, nil
}

func (f *fakeStore) CountEntitiesMissingEmbedding(ctx context.Context, ownerID string) (int, error) {
	return f.entityGap, nil
}

func (f *fakeStore) FindSelfReferentialEdges(ctx context.Context, ownerID string) ([]graph.SelfReferentialEdge, error) {
	return f.selfRefs, nil
}

func (f *fakeStore) FindEntityRelationsBetweenDecisions(ctx context.Context, ownerID string) ([]graph.DecisionPairEdge, error) {
	return f.pairEdges, nil
}

func (f *fakeStore) DeleteSelfReferentialEdges(ctx context.Context, ownerID string) (int, error) {
	removed := len(f.selfRefs)
	f.selfRefs = nil
	f.deleted += removed
	return removed, nil
}

func issuesOfType(issues []Issue, t IssueType) []Issue {
	var out []Issue
	for _, issue := range issues {
		if issue.Type == t {
			out = append(out, issue)
		}
	}
	return out
}

func TestValidateAllReportsCycle(t *testing.T) {
	store := &fakeStore{
		cycles: []graph.Cycle{{
			Names: []string{"auth service", "user service", "auth service"},
			IDs:   []string{"e1", "e2", "e1"},
		}},
	}
	v := NewValidator(store, 0.85)

	issues := v.ValidateAll(context.Background(), "user-1")
	found := issuesOfType(issues, IssueCircularDependency)
	if len(found) != 1 {
		t.Fatalf("expected 1 cycle issue, got %d", len(found))
	}
	if found[0].Severity != SeverityError {
		t.Errorf("cycle severity = %s, want error", found[0].Severity)
	}
	if !strings.Contains(found[0].Message, "auth service -> user service -> auth service") {
		t.Errorf("unexpected cycle message: %q", found[0].Message)
	}
}

func TestValidateAllSurvivesCheckFailure(t *testing.T) {
	store := &fakeStore{
		cycleErr: errors.New("database unreachable"),
		orphans:  []graph.EntityRef{{ID: "e1", Name: "Redis", Type: "technology"}},
	}
	v := NewValidator(store, 0.85)

	issues := v.ValidateAll(context.Background(), "user-1")
	if len(issuesOfType(issues, IssueCircularDependency)) != 0 {
		t.Error("failed check should yield no issues")
	}
	orphanIssues := issuesOfType(issues, IssueOrphanEntity)
	if len(orphanIssues) != 1 {
		t.Fatalf("expected orphan issue despite cycle failure, got %d", len(orphanIssues))
	}
	if orphanIssues[0].Severity != SeverityWarning {
		t.Errorf("orphan severity = %s, want warning", orphanIssues[0].Severity)
	}
}

func TestDuplicateSeveritySplit(t *testing.T) {
	store := &fakeStore{
		entities: []graph.EntityRef{
			// known alias pair at fuzzy distance below 100
			{ID: "e1", Name: "PostgreSQL", Type: "technology"},
			{ID: "e2", Name: "Postgres", Type: "technology"},
			// near-identical strings with no alias relationship
			{ID: "e3", Name: "payment service", Type: "component"},
			{ID: "e4", Name: "payments service", Type: "component"},
		},
	}
	v := NewValidator(store, 0.85)

	issues := v.ValidateAll(context.Background(), "")
	dupes := issuesOfType(issues, IssueDuplicateEntity)
	if len(dupes) != 2 {
		t.Fatalf("expected 2 duplicate issues, got %d", len(dupes))
	}

	bySeverity := map[Severity]int{}
	for _, issue := range dupes {
		bySeverity[issue.Severity]++
	}
	if bySeverity[SeverityWarning] != 1 {
		t.Errorf("expected 1 known-alias warning, got %d", bySeverity[SeverityWarning])
	}
	if bySeverity[SeverityInfo] != 1 {
		t.Errorf("expected 1 info duplicate, got %d", bySeverity[SeverityInfo])
	}
}

func TestMissingEmbeddingSeverities(t *testing.T) {
	store := &fakeStore{decisionGap: 3, entityGap: 7}
	v := NewValidator(store, 0.85)

	issues := issuesOfType(v.ValidateAll(context.Background(), ""), IssueMissingEmbedding)
	if len(issues) != 2 {
		t.Fatalf("expected 2 missing-embedding issues, got %d", len(issues))
	}
	for _, issue := range issues {
		switch issue.Details["type"] {
		case "decision":
			if issue.Severity != SeverityWarning {
				t.Errorf("decision gap severity = %s, want warning", issue.Severity)
			}
		case "entity":
			if issue.Severity != SeverityInfo {
				t.Errorf("entity gap severity = %s, want info", issue.Severity)
			}
		default:
			t.Errorf("unexpected details type: %v", issue.Details["type"])
		}
	}
}

func TestAutoFixRemovesSelfReferences(t *testing.T) {
	store := &fakeStore{
		selfRefs: []graph.SelfReferentialEdge{
			{NodeID: "d1", Name: "Use Redis for sessions", RelType: "SIMILAR_TO"},
			{NodeID: "d2", Name: "Adopt event sourcing", RelType: "INFLUENCED_BY"},
		},
	}
	v := NewValidator(store, 0.85)

	stats, err := v.AutoFix(context.Background(), "user-1", nil)
	if err != nil {
		t.Fatalf("AutoFix: %v", err)
	}
	if stats.SelfReferencesRemoved != 2 {
		t.Errorf("removed = %d, want 2", stats.SelfReferencesRemoved)
	}
	if len(issuesOfType(v.ValidateAll(context.Background(), "user-1"), IssueInvalidRelation)) != 0 {
		t.Error("self-referential issues should be gone after the fix")
	}
}

func TestAutoFixSkipsUnrequestedTypes(t *testing.T) {
	store := &fakeStore{
		selfRefs: []graph.SelfReferentialEdge{{NodeID: "d1", RelType: "SIMILAR_TO"}},
	}
	v := NewValidator(store, 0.85)

	stats, err := v.AutoFix(context.Background(), "user-1", []IssueType{IssueDuplicateEntity})
	if err != nil {
		t.Fatalf("AutoFix: %v", err)
	}
	if stats.SelfReferencesRemoved != 0 {
		t.Errorf("removed = %d, want 0", stats.SelfReferencesRemoved)
	}
	if store.deleted != 0 {
		t.Error("store delete should not run for unrequested fix types")
	}
}

func TestGetSummaryCounts(t *testing.T) {
	store := &fakeStore{
		cycles: []graph.Cycle{{Names: []string{"a", "b", "a"}, IDs: []string{"e1", "e2", "e1"}}},
		lowConf: []graph.LowConfidenceRelationship{
			{SourceID: "e1", SourceName: "a", TargetID: "e2", TargetName: "b", RelType: "RELATED_TO", Confidence: 0.3},
		},
		entityGap: 2,
	}
	v := NewValidator(store, 0.85)

	summary := v.GetSummary(context.Background(), "")
	if summary.TotalIssues != 3 {
		t.Fatalf("total = %d, want 3", summary.TotalIssues)
	}
	if summary.BySeverity[SeverityError] != 1 || summary.BySeverity[SeverityInfo] != 2 {
		t.Errorf("unexpected severity counts: %v", summary.BySeverity)
	}
	if summary.ByType[IssueCircularDependency] != 1 || summary.ByType[IssueLowConfidence] != 1 || summary.ByType[IssueMissingEmbedding] != 1 {
		t.Errorf("unexpected type counts: %v", summary.ByType)
	}
}
