package enrichment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"decision-graph/backend/internal/graph"
	"decision-graph/backend/internal/ontology"
	"decision-graph/backend/internal/resolver"
)

// fakeGraph implements both the pipeline Store and the resolver Store, so
// entities written by the pipeline are immediately visible to resolution.
type fakeGraph struct {
	decisions      map[string]graph.DecisionTrace
	entities       []graph.Entity
	involves       map[string]map[string]float64 // decision id -> entity id -> weight
	entityRels     []string                      // "from|type|to"
	similarityArgs [][2]string
	similarStubs   []graph.SimilarDecision
	gdsErr         error
	influenceCalls int
	decisionRels   []string // "from|type|to"
	createErr      error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		decisions: make(map[string]graph.DecisionTrace),
		involves:  make(map[string]map[string]float64),
	}
}

func (f *fakeGraph) CreateDecision(ctx context.Context, d graph.DecisionTrace) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.decisions[d.ID] = d
	return nil
}

func (f *fakeGraph) CreateEntityWithInvolvement(ctx context.Context, e graph.Entity, decisionID string, weight float64) error {
	f.entities = append(f.entities, e)
	if f.involves[decisionID] == nil {
		f.involves[decisionID] = make(map[string]float64)
	}
	f.involves[decisionID][e.ID] = weight
	return nil
}

func (f *fakeGraph) LinkEntityToDecision(ctx context.Context, entityID, decisionID string, weight float64) error {
	if f.involves[decisionID] == nil {
		f.involves[decisionID] = make(map[string]float64)
	}
	f.involves[decisionID][entityID] = weight
	return nil
}

func (f *fakeGraph) CreateEntityRelationship(ctx context.Context, from, to string, relType ontology.RelationType, confidence float64) error {
	f.entityRels = append(f.entityRels, from+"|"+string(relType)+"|"+to)
	return nil
}

func (f *fakeGraph) FindSimilarDecisions(ctx context.Context, decisionID string, threshold float64, ownerID string) ([]graph.SimilarDecision, error) {
	if f.gdsErr != nil {
		return nil, f.gdsErr
	}
	return f.similarStubs, nil
}

func (f *fakeGraph) ListDecisionEmbeddings(ctx context.Context, excludeID, ownerID string, limit int) ([]graph.DecisionEmbedding, error) {
	var out []graph.DecisionEmbedding
	for id, d := range f.decisions {
		if id == excludeID || d.Embedding == nil {
			continue
		}
		out = append(out, graph.DecisionEmbedding{ID: id, Embedding: d.Embedding})
	}
	return out, nil
}

func (f *fakeGraph) CreateSimilarityLink(ctx context.Context, fromID, toID string, score float64, tier string) error {
	f.similarityArgs = append(f.similarityArgs, [2]string{toID, tier})
	return nil
}

func (f *fakeGraph) CreateInfluenceLinks(ctx context.Context, decisionID, ownerID string) (int, error) {
	f.influenceCalls++
	return 0, nil
}

func (f *fakeGraph) GetDecisionSummary(ctx context.Context, decisionID string) (*graph.DecisionSummary, error) {
	d, ok := f.decisions[decisionID]
	if !ok {
		return &graph.DecisionSummary{ID: decisionID, Trigger: "stub", Decision: "stub"}, nil
	}
	return &graph.DecisionSummary{
		ID: d.ID, Trigger: d.Trigger, Decision: d.Decision, Rationale: d.Rationale,
	}, nil
}

func (f *fakeGraph) CreateDecisionRelationship(ctx context.Context, fromID, toID string, relType ontology.RelationType, confidence float64) error {
	f.decisionRels = append(f.decisionRels, fromID+"|"+string(relType)+"|"+toID)
	return nil
}

// resolver.Store methods

func (f *fakeGraph) FindEntityByName(ctx context.Context, name, ownerID string) (*graph.EntityRef, error) {
	for _, e := range f.entities {
		if strings.ToLower(e.Name) == name {
			return &graph.EntityRef{ID: e.ID, Name: e.Name, Type: e.Type}, nil
		}
	}
	return nil, nil
}

func (f *fakeGraph) FindEntityByAlias(ctx context.Context, name, ownerID string) (*graph.EntityRef, error) {
	for _, e := range f.entities {
		for _, alias := range e.Aliases {
			if strings.ToLower(alias) == name {
				return &graph.EntityRef{ID: e.ID, Name: e.Name, Type: e.Type}, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeGraph) FullTextEntityCandidates(ctx context.Context, term, ownerID string, limit int) ([]graph.EntityRef, error) {
	return f.ListEntityCandidates(ctx, ownerID, 0, limit)
}

func (f *fakeGraph) ListEntityCandidates(ctx context.Context, ownerID string, offset, limit int) ([]graph.EntityRef, error) {
	if offset >= len(f.entities) {
		return nil, nil
	}
	var refs []graph.EntityRef
	for _, e := range f.entities[offset:] {
		refs = append(refs, graph.EntityRef{ID: e.ID, Name: e.Name, Type: e.Type})
		if len(refs) == limit {
			break
		}
	}
	return refs, nil
}

func (f *fakeGraph) FindEntityByEmbeddingGDS(ctx context.Context, embedding []float64, threshold float64, ownerID string) (*graph.EmbeddingMatch, error) {
	return nil, nil
}

func (f *fakeGraph) ListEntityEmbeddings(ctx context.Context, ownerID string, limit int) ([]graph.EntityCandidate, error) {
	return nil, nil
}

func (f *fakeGraph) MergeEntities(ctx context.Context, primaryID, duplicateID string) error {
	return nil
}

// scriptedLLM answers by prompt shape; the zero value refuses everything
type scriptedLLM struct {
	entityResponse       string
	relationshipResponse string
	pairResponse         string
	err                  error
}

func (s *scriptedLLM) Generate(ctx context.Context, callerID, systemPrompt, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	switch {
	case strings.Contains(prompt, "Extract technical entities"):
		return s.entityResponse, nil
	case strings.Contains(prompt, "Identify relationships between these entities"):
		return s.relationshipResponse, nil
	case strings.Contains(prompt, "Analyze if these two decisions"):
		return s.pairResponse, nil
	}
	return "", errors.New("unexpected prompt")
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, text, kind string) (string, bool) { return "", false }
func (noopCache) Set(ctx context.Context, text, kind, response string)      {}

type stubEmbedder struct {
	decisionVec []float64
	entityVec   []float64
	err         error
}

func (s *stubEmbedder) EmbedDecision(ctx context.Context, trigger, decisionContext string, options []string, decision, rationale string) ([]float64, error) {
	return s.decisionVec, s.err
}

func (s *stubEmbedder) EmbedEntity(ctx context.Context, name, entityType string) ([]float64, error) {
	return s.entityVec, s.err
}

func newTestPipeline(store *fakeGraph, llm LLM, embedder EmbeddingService) *Pipeline {
	res := resolver.NewResolver(store, embedderAdapter{embedder}, 0.85, 0.90)
	ext := NewExtractor(llm, noopCache{})
	return NewPipeline(store, res, embedder, ext, 0.85, 0.90)
}

// embedderAdapter narrows EmbeddingService to the resolver's interface
type embedderAdapter struct{ inner EmbeddingService }

func (a embedderAdapter) EmbedEntity(ctx context.Context, name, entityType string) ([]float64, error) {
	return a.inner.EmbedEntity(ctx, name, entityType)
}

func TestSaveDecisionDeduplicatesMentions(t *testing.T) {
	store := newFakeGraph()
	llm := &scriptedLLM{
		entityResponse: `{
			"entities": [
				{"name": "PostgreSQL", "type": "technology", "confidence": 0.95},
				{"name": "Postgres", "type": "technology", "confidence": 0.9}
			],
			"reasoning": "both refer to the same database"
		}`,
		relationshipResponse: `{"relationships": [], "reasoning": "nothing to add"}`,
	}
	embedder := &stubEmbedder{err: errors.New("embeddings down")}
	p := newTestPipeline(store, llm, embedder)

	id, err := p.SaveDecision(context.Background(), DecisionDraft{
		Trigger:    "Need a database",
		Decision:   "Use PostgreSQL",
		Rationale:  "Relational data and the team knows SQL well already",
		Confidence: 0.9,
	}, "manual", "owner-1")
	if err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	if len(store.entities) != 1 {
		t.Fatalf("expected 1 entity node, got %d", len(store.entities))
	}
	if store.entities[0].Name != "PostgreSQL" {
		t.Errorf("expected canonical name PostgreSQL, got %q", store.entities[0].Name)
	}
	if len(store.involves[id]) != 1 {
		t.Errorf("expected 1 INVOLVES edge, got %d", len(store.involves[id]))
	}
}

func TestSaveDecisionPersistsWhenEnrichmentFails(t *testing.T) {
	store := newFakeGraph()
	llm := &scriptedLLM{err: errors.New("llm unavailable")}
	embedder := &stubEmbedder{err: errors.New("embeddings down")}
	p := newTestPipeline(store, llm, embedder)

	id, err := p.SaveDecision(context.Background(), DecisionDraft{
		Trigger:  "Need a queue",
		Decision: "Use Kafka",
	}, "manual", "owner-1")
	if err != nil {
		t.Fatalf("SaveDecision must not fail when enrichment degrades: %v", err)
	}
	if _, ok := store.decisions[id]; !ok {
		t.Fatal("decision node was not persisted")
	}
	if len(store.entities) != 0 {
		t.Errorf("no entities should exist after failed extraction, got %d", len(store.entities))
	}
	if store.influenceCalls != 1 {
		t.Errorf("influence linking should still run, calls=%d", store.influenceCalls)
	}
}

func TestSaveDecisionFailsWhenNodeWriteFails(t *testing.T) {
	store := newFakeGraph()
	store.createErr = errors.New("neo4j down")
	p := newTestPipeline(store, &scriptedLLM{err: errors.New("unused")}, &stubEmbedder{err: errors.New("unused")})

	_, err := p.SaveDecision(context.Background(), DecisionDraft{Decision: "anything"}, "manual", "")
	if err == nil {
		t.Fatal("expected error when the decision node write fails")
	}
}

func TestSimilarityTiers(t *testing.T) {
	store := newFakeGraph()
	store.similarStubs = []graph.SimilarDecision{
		{ID: "d-high", Score: 0.93},
		{ID: "d-moderate", Score: 0.87},
	}
	llm := &scriptedLLM{
		entityResponse: `{"entities": [], "reasoning": ""}`,
		pairResponse:   `{"relationship": null, "confidence": 0.0, "reasoning": "unrelated"}`,
	}
	embedder := &stubEmbedder{decisionVec: []float64{1, 0}}
	p := newTestPipeline(store, llm, embedder)

	_, err := p.SaveDecision(context.Background(), DecisionDraft{
		Trigger:  "Need a database",
		Decision: "Use PostgreSQL",
	}, "manual", "owner-1")
	if err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	if len(store.similarityArgs) != 2 {
		t.Fatalf("expected 2 similarity links, got %d", len(store.similarityArgs))
	}
	if store.similarityArgs[0] != [2]string{"d-high", "high"} {
		t.Errorf("expected high tier for 0.93, got %v", store.similarityArgs[0])
	}
	if store.similarityArgs[1] != [2]string{"d-moderate", "moderate"} {
		t.Errorf("expected moderate tier for 0.87, got %v", store.similarityArgs[1])
	}
	if len(store.decisionRels) != 0 {
		t.Errorf("null pair verdict must not create decision relationships: %v", store.decisionRels)
	}
}

func TestSupersedesRecordedAgainstStrongestMatch(t *testing.T) {
	store := newFakeGraph()
	store.decisions["d-old"] = graph.DecisionTrace{
		ID: "d-old", Trigger: "Need a database", Decision: "Use MySQL",
	}
	store.similarStubs = []graph.SimilarDecision{{ID: "d-old", Score: 0.95}}
	llm := &scriptedLLM{
		entityResponse: `{"entities": [], "reasoning": ""}`,
		pairResponse:   `{"relationship": "SUPERSEDES", "confidence": 0.9, "reasoning": "database switched"}`,
	}
	embedder := &stubEmbedder{decisionVec: []float64{1, 0}}
	p := newTestPipeline(store, llm, embedder)

	id, err := p.SaveDecision(context.Background(), DecisionDraft{
		Trigger:  "Revisit database",
		Decision: "Use PostgreSQL",
	}, "manual", "owner-1")
	if err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	want := id + "|SUPERSEDES|d-old"
	if len(store.decisionRels) != 1 || store.decisionRels[0] != want {
		t.Errorf("expected %q, got %v", want, store.decisionRels)
	}
}

func TestSimilarityBruteForceFallback(t *testing.T) {
	store := newFakeGraph()
	store.gdsErr = errors.New("gds missing")
	store.decisions["d-other"] = graph.DecisionTrace{
		ID: "d-other", Decision: "Use PostgreSQL", Embedding: []float64{1, 0},
	}
	llm := &scriptedLLM{
		entityResponse: `{"entities": [], "reasoning": ""}`,
		pairResponse:   `{"relationship": null, "confidence": 0.0, "reasoning": ""}`,
	}
	embedder := &stubEmbedder{decisionVec: []float64{1, 0.01}}
	p := newTestPipeline(store, llm, embedder)

	_, err := p.SaveDecision(context.Background(), DecisionDraft{
		Trigger:  "Revisit database",
		Decision: "Keep PostgreSQL",
	}, "manual", "owner-1")
	if err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	if len(store.similarityArgs) != 1 || store.similarityArgs[0][0] != "d-other" {
		t.Fatalf("expected brute-force link to d-other, got %v", store.similarityArgs)
	}
	if store.similarityArgs[0][1] != "high" {
		t.Errorf("near-identical vectors should land in the high tier, got %s", store.similarityArgs[0][1])
	}
}

func TestRelationshipDowngradeFlowsToStore(t *testing.T) {
	store := newFakeGraph()
	llm := &scriptedLLM{
		entityResponse: `{
			"entities": [
				{"name": "GraphQL", "type": "technology", "confidence": 0.95},
				{"name": "event streaming", "type": "concept", "confidence": 0.9}
			],
			"reasoning": ""
		}`,
		// ALTERNATIVE_TO across differing entity types is invalid and must
		// be downgraded to RELATED_TO
		relationshipResponse: `{
			"relationships": [
				{"from": "GraphQL", "to": "event streaming", "type": "ALTERNATIVE_TO", "confidence": 0.9}
			],
			"reasoning": ""
		}`,
	}
	embedder := &stubEmbedder{err: errors.New("embeddings down")}
	p := newTestPipeline(store, llm, embedder)

	_, err := p.SaveDecision(context.Background(), DecisionDraft{
		Trigger:  "Need an API style",
		Decision: "Use GraphQL",
	}, "manual", "owner-1")
	if err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	want := "GraphQL|RELATED_TO|event streaming"
	if len(store.entityRels) != 1 || store.entityRels[0] != want {
		t.Errorf("expected %q, got %v", want, store.entityRels)
	}
}
