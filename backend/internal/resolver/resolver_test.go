package resolver

import (
	"context"
	"errors"
	"testing"

	"decision-graph/backend/internal/graph"
)

// fakeStore is an in-memory Store for pipeline tests
type fakeStore struct {
	entities   []graph.EntityRef
	aliases    map[string]string // lowered alias -> entity id
	embeddings map[string][]float64
	gdsErr     error
	merges     [][2]string
}

func newFakeStore(entities ...graph.EntityRef) *fakeStore {
	return &fakeStore{
		entities:   entities,
		aliases:    make(map[string]string),
		embeddings: make(map[string][]float64),
	}
}

func (f *fakeStore) find(id string) *graph.EntityRef {
	for i := range f.entities {
		if f.entities[i].ID == id {
			return &f.entities[i]
		}
	}
	return nil
}

func (f *fakeStore) FindEntityByName(ctx context.Context, name, ownerID string) (*graph.EntityRef, error) {
	for i := range f.entities {
		if normalize(f.entities[i].Name) == name {
			return &f.entities[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindEntityByAlias(ctx context.Context, name, ownerID string) (*graph.EntityRef, error) {
	if id, ok := f.aliases[name]; ok {
		return f.find(id), nil
	}
	return nil, nil
}

func (f *fakeStore) FullTextEntityCandidates(ctx context.Context, term, ownerID string, limit int) ([]graph.EntityRef, error) {
	return f.entities, nil
}

func (f *fakeStore) ListEntityCandidates(ctx context.Context, ownerID string, offset, limit int) ([]graph.EntityRef, error) {
	if offset >= len(f.entities) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.entities) {
		end = len(f.entities)
	}
	return f.entities[offset:end], nil
}

func (f *fakeStore) FindEntityByEmbeddingGDS(ctx context.Context, embedding []float64, threshold float64, ownerID string) (*graph.EmbeddingMatch, error) {
	if f.gdsErr != nil {
		return nil, f.gdsErr
	}
	return nil, nil
}

func (f *fakeStore) ListEntityEmbeddings(ctx context.Context, ownerID string, limit int) ([]graph.EntityCandidate, error) {
	var candidates []graph.EntityCandidate
	for id, embedding := range f.embeddings {
		ref := f.find(id)
		if ref == nil {
			continue
		}
		candidates = append(candidates, graph.EntityCandidate{
			ID: ref.ID, Name: ref.Name, Type: ref.Type, Embedding: embedding,
		})
	}
	return candidates, nil
}

func (f *fakeStore) MergeEntities(ctx context.Context, primaryID, duplicateID string) error {
	f.merges = append(f.merges, [2]string{primaryID, duplicateID})
	return nil
}

func normalize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

type fakeEmbedder struct {
	vec []float64
	err error
}

func (f *fakeEmbedder) EmbedEntity(ctx context.Context, name, entityType string) ([]float64, error) {
	return f.vec, f.err
}

func newTestResolver(store *fakeStore, embedder Embedder) *Resolver {
	if embedder == nil {
		embedder = &fakeEmbedder{err: errors.New("embedding unavailable")}
	}
	return NewResolver(store, embedder, 0.85, 0.90)
}

func TestResolveExactMatch(t *testing.T) {
	store := newFakeStore(graph.EntityRef{ID: "e1", Name: "PostgreSQL", Type: "technology"})
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "postgresql", "technology", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.ID != "e1" || resolved.MatchMethod != MatchExact {
		t.Errorf("expected exact match on e1, got %+v", resolved)
	}
	if resolved.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %f", resolved.Confidence)
	}
	if resolved.IsNew {
		t.Error("exact match must not be marked new")
	}
}

func TestResolveCanonicalLookup(t *testing.T) {
	store := newFakeStore(graph.EntityRef{ID: "e1", Name: "PostgreSQL", Type: "technology"})
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "postgres", "technology", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.MatchMethod != MatchCanonical {
		t.Fatalf("expected canonical match, got %s", resolved.MatchMethod)
	}
	if resolved.ID != "e1" {
		t.Errorf("expected e1, got %s", resolved.ID)
	}
	if resolved.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", resolved.Confidence)
	}
	if resolved.CanonicalName != "PostgreSQL" {
		t.Errorf("expected canonical name PostgreSQL, got %q", resolved.CanonicalName)
	}
}

func TestResolveAliasMatch(t *testing.T) {
	store := newFakeStore(graph.EntityRef{ID: "e1", Name: "Kubernetes", Type: "technology"})
	store.aliases["container orchestrator"] = "e1"
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "Container Orchestrator", "technology", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.MatchMethod != MatchAlias || resolved.ID != "e1" {
		t.Errorf("expected alias match on e1, got %+v", resolved)
	}
	if resolved.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %f", resolved.Confidence)
	}
}

func TestResolveFuzzyMatch(t *testing.T) {
	// "graphql api" vs "graphql apis" scores above 85 but is neither exact,
	// canonical, nor aliased
	store := newFakeStore(graph.EntityRef{ID: "e1", Name: "graphql apis", Type: "concept"})
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "graphql api", "concept", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.MatchMethod != MatchFuzzy || resolved.ID != "e1" {
		t.Fatalf("expected fuzzy match on e1, got %+v", resolved)
	}
	if resolved.Confidence < 0.85 || resolved.Confidence >= 1.0 {
		t.Errorf("fuzzy confidence out of range: %f", resolved.Confidence)
	}
}

func TestResolveFuzzyThresholdBoundary(t *testing.T) {
	// "service discovery" vs "service discovery tools" scores exactly 85
	store := newFakeStore(graph.EntityRef{ID: "e1", Name: "service discovery tools", Type: "concept"})
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "service discovery", "concept", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.MatchMethod != MatchFuzzy || resolved.ID != "e1" {
		t.Fatalf("score equal to the threshold must match, got %+v", resolved)
	}
	if resolved.Confidence != 0.85 {
		t.Errorf("expected confidence 0.85, got %f", resolved.Confidence)
	}

	// "feature flagging" vs "feature flagging tools" scores 84, one point
	// below the threshold, so resolution falls through to later stages and
	// ends up creating a new entity
	store = newFakeStore(graph.EntityRef{ID: "e1", Name: "feature flagging tools", Type: "concept"})
	r = newTestResolver(store, nil)

	resolved, err = r.Resolve(context.Background(), "feature flagging", "concept", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !resolved.IsNew || resolved.MatchMethod != MatchNew {
		t.Errorf("score below the threshold must not fuzzy-match, got %+v", resolved)
	}
}

func TestResolveAliasBeatsFuzzy(t *testing.T) {
	// "graphql api" is a stored alias of e1 and a 96-point fuzzy match for
	// e2; the alias stage runs first and must win
	store := newFakeStore(
		graph.EntityRef{ID: "e1", Name: "GraphQL Gateway", Type: "technology"},
		graph.EntityRef{ID: "e2", Name: "graphql apis", Type: "concept"},
	)
	store.aliases["graphql api"] = "e1"
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "GraphQL API", "technology", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.MatchMethod != MatchAlias {
		t.Fatalf("expected alias match to beat the fuzzy candidate, got %s on %s", resolved.MatchMethod, resolved.ID)
	}
	if resolved.ID != "e1" {
		t.Errorf("expected e1, got %s", resolved.ID)
	}
	if resolved.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %f", resolved.Confidence)
	}
}

func TestResolveEmbeddingMatch(t *testing.T) {
	store := newFakeStore(graph.EntityRef{ID: "e1", Name: "event sourcing", Type: "pattern"})
	store.embeddings["e1"] = []float64{1, 0, 0}
	store.gdsErr = errors.New("gds not installed")
	r := newTestResolver(store, &fakeEmbedder{vec: []float64{0.99, 0.01, 0}})

	resolved, err := r.Resolve(context.Background(), "evented state capture", "pattern", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.MatchMethod != MatchEmbedding || resolved.ID != "e1" {
		t.Fatalf("expected embedding match on e1, got %+v", resolved)
	}
	if resolved.Confidence <= 0.90 {
		t.Errorf("expected similarity above threshold, got %f", resolved.Confidence)
	}
}

func TestResolveCreatesNew(t *testing.T) {
	store := newFakeStore()
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "some brand new thing", "concept", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !resolved.IsNew || resolved.MatchMethod != MatchNew {
		t.Fatalf("expected new entity, got %+v", resolved)
	}
	if resolved.ID == "" {
		t.Error("new entity must get an id")
	}
	if resolved.Name != "some brand new thing" {
		t.Errorf("unexpected name: %q", resolved.Name)
	}
	if len(resolved.Aliases) != 0 {
		t.Errorf("expected no aliases, got %v", resolved.Aliases)
	}
}

func TestResolveCreatesNewWithCanonicalName(t *testing.T) {
	store := newFakeStore()
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "k8s", "technology", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !resolved.IsNew {
		t.Fatalf("expected new entity, got %+v", resolved)
	}
	if resolved.Name != "Kubernetes" {
		t.Errorf("expected canonical spelling Kubernetes, got %q", resolved.Name)
	}
	if len(resolved.Aliases) != 1 || resolved.Aliases[0] != "k8s" {
		t.Errorf("expected raw name kept as alias, got %v", resolved.Aliases)
	}
}

func TestResolveBatchDeduplicates(t *testing.T) {
	store := newFakeStore()
	r := newTestResolver(store, nil)

	resolved, err := r.ResolveBatch(context.Background(), []ProposedEntity{
		{Name: "PostgreSQL", Type: "technology"},
		{Name: "postgresql", Type: "technology"},
		{Name: "postgres", Type: "technology"}, // canonical form of the first
		{Name: "Redis", Type: "technology"},
	}, "")
	if err != nil {
		t.Fatalf("ResolveBatch failed: %v", err)
	}
	if len(resolved) != 4 {
		t.Fatalf("expected 4 results, got %d", len(resolved))
	}
	if resolved[0].ID != resolved[1].ID {
		t.Error("repeated name must resolve to the same entity")
	}
	if resolved[0].ID != resolved[2].ID {
		t.Error("canonical variant must resolve to the same entity")
	}
	if resolved[3].ID == resolved[0].ID {
		t.Error("distinct name must not be collapsed")
	}
}

func TestResolveBatchDefaultsType(t *testing.T) {
	store := newFakeStore()
	r := newTestResolver(store, nil)

	resolved, err := r.ResolveBatch(context.Background(), []ProposedEntity{{Name: "mystery thing"}}, "")
	if err != nil {
		t.Fatalf("ResolveBatch failed: %v", err)
	}
	if resolved[0].Type != "concept" {
		t.Errorf("expected default type concept, got %q", resolved[0].Type)
	}
}

func TestMergeDuplicatesPrefersCanonicalPrimary(t *testing.T) {
	store := newFakeStore(
		graph.EntityRef{ID: "e1", Name: "postgresql db", Type: "technology"},
		graph.EntityRef{ID: "e2", Name: "PostgreSQL", Type: "technology"},
		graph.EntityRef{ID: "e3", Name: "Redis", Type: "technology"},
	)
	r := newTestResolver(store, nil)

	stats, err := r.MergeDuplicates(context.Background(), "")
	if err != nil {
		t.Fatalf("MergeDuplicates failed: %v", err)
	}
	if stats.GroupsFound != 1 || stats.EntitiesMerged != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(store.merges) != 1 {
		t.Fatalf("expected 1 merge call, got %d", len(store.merges))
	}
	// The canonical spelling wins the primary slot even when seen second
	if store.merges[0][0] != "e2" || store.merges[0][1] != "e1" {
		t.Errorf("expected e1 merged into e2, got %v", store.merges[0])
	}
}

func TestMergeDuplicatesNoGroups(t *testing.T) {
	store := newFakeStore(
		graph.EntityRef{ID: "e1", Name: "PostgreSQL", Type: "technology"},
		graph.EntityRef{ID: "e2", Name: "Redis", Type: "technology"},
	)
	r := newTestResolver(store, nil)

	stats, err := r.MergeDuplicates(context.Background(), "")
	if err != nil {
		t.Fatalf("MergeDuplicates failed: %v", err)
	}
	if stats.GroupsFound != 0 || stats.EntitiesMerged != 0 {
		t.Errorf("expected no merges, got %+v", stats)
	}
}
