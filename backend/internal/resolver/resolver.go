// Package resolver maps free-form entity names onto canonical graph nodes.
//
// Resolution runs a staged pipeline from cheapest to most expensive: exact
// name match, canonical alias table, stored aliases, fuzzy string matching
// over a bounded candidate set, then embedding similarity. Each lookup runs
// owner-scoped first and falls back to the global graph, so a caller's own
// vocabulary wins ties. Only when every stage misses is a new entity minted.
package resolver

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"decision-graph/backend/internal/graph"
	"decision-graph/backend/internal/ontology"
	"decision-graph/backend/internal/similarity"
	"decision-graph/backend/pkg/logger"
)

const (
	// ceiling on entities loaded for fuzzy and brute-force embedding matching
	fuzzyMatchLimit = 500
	// page size for batched candidate loading
	fuzzyMatchBatchSize = 100
)

// MatchMethod names the pipeline stage that produced a resolution
type MatchMethod string

const (
	MatchExact     MatchMethod = "exact"
	MatchCanonical MatchMethod = "canonical"
	MatchAlias     MatchMethod = "alias"
	MatchFuzzy     MatchMethod = "fuzzy"
	MatchEmbedding MatchMethod = "embedding"
	MatchNew       MatchMethod = "new"
)

// ResolvedEntity is the outcome of resolving one name
type ResolvedEntity struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Type          string      `json:"type"`
	IsNew         bool        `json:"is_new"`
	MatchMethod   MatchMethod `json:"match_method"`
	Confidence    float64     `json:"confidence"`
	CanonicalName string      `json:"canonical_name,omitempty"`
	Aliases       []string    `json:"aliases,omitempty"`
}

// ProposedEntity is an unresolved name/type pair, typically extracted from
// decision text.
type ProposedEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Store is the subset of graph operations resolution needs
type Store interface {
	FindEntityByName(ctx context.Context, normalizedName, ownerID string) (*graph.EntityRef, error)
	FindEntityByAlias(ctx context.Context, normalizedName, ownerID string) (*graph.EntityRef, error)
	FullTextEntityCandidates(ctx context.Context, searchTerm, ownerID string, limit int) ([]graph.EntityRef, error)
	ListEntityCandidates(ctx context.Context, ownerID string, offset, limit int) ([]graph.EntityRef, error)
	FindEntityByEmbeddingGDS(ctx context.Context, embedding []float64, threshold float64, ownerID string) (*graph.EmbeddingMatch, error)
	ListEntityEmbeddings(ctx context.Context, ownerID string, limit int) ([]graph.EntityCandidate, error)
	MergeEntities(ctx context.Context, primaryID, duplicateID string) error
}

// Embedder produces entity embeddings for the similarity stage
type Embedder interface {
	EmbedEntity(ctx context.Context, name, entityType string) ([]float64, error)
}

// Resolver is the multi-stage entity resolution pipeline
type Resolver struct {
	store    Store
	embedder Embedder
	// fuzzy score floor on the 0-100 ratio scale
	fuzzyThreshold int
	// cosine similarity floor for the embedding stage
	embeddingThreshold float64
	logger             *zap.Logger
}

// NewResolver creates a resolver. fuzzyThreshold is on the 0-1 scale and is
// converted to the 0-100 ratio scale internally.
func NewResolver(store Store, embedder Embedder, fuzzyThreshold, embeddingThreshold float64) *Resolver {
	return &Resolver{
		store:              store,
		embedder:           embedder,
		fuzzyThreshold:     int(fuzzyThreshold * 100),
		embeddingThreshold: embeddingThreshold,
		logger:             logger.Named("resolver"),
	}
}

// Resolve maps a name to an existing entity or mints a new one. Graph and
// embedding failures in the later stages degrade to creating a new entity
// rather than failing the call.
func (r *Resolver) Resolve(ctx context.Context, name, entityType, ownerID string) (*ResolvedEntity, error) {
	normalized := ontology.NormalizeName(name)

	// Stage 1: exact match
	existing, err := r.findByName(ctx, normalized, ownerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return resolvedFrom(existing, MatchExact, 1.0), nil
	}

	// Stage 2: canonical lookup
	canonical := ontology.CanonicalName(name)
	if ontology.NormalizeName(canonical) != normalized {
		existing, err = r.findByName(ctx, ontology.NormalizeName(canonical), ownerID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			resolved := resolvedFrom(existing, MatchCanonical, 0.95)
			resolved.CanonicalName = canonical
			return resolved, nil
		}
	}

	// Stage 3: stored alias search
	existing, err = r.findByAlias(ctx, normalized, ownerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return resolvedFrom(existing, MatchAlias, 0.92), nil
	}

	// Stage 4: fuzzy match over fulltext candidates
	if match, score := r.findByFuzzy(ctx, normalized, ownerID); match != nil {
		return resolvedFrom(match, MatchFuzzy, float64(score)/100.0), nil
	}

	// Stage 5: embedding similarity
	if match := r.findByEmbedding(ctx, name, entityType, ownerID); match != nil {
		return &ResolvedEntity{
			ID:          match.ID,
			Name:        match.Name,
			Type:        match.Type,
			MatchMethod: MatchEmbedding,
			Confidence:  match.Similarity,
		}, nil
	}

	// Stage 6: create new, preferring the canonical spelling
	finalName := name
	var aliases []string
	if ontology.NormalizeName(canonical) != normalized {
		finalName = canonical
		aliases = []string{name}
	}
	return &ResolvedEntity{
		ID:          uuid.New().String(),
		Name:        finalName,
		Type:        entityType,
		IsNew:       true,
		MatchMethod: MatchNew,
		Confidence:  1.0,
		Aliases:     aliases,
	}, nil
}

// ResolveBatch resolves a slice of proposed entities, deduplicating repeated
// names within the batch. A name and its canonical form resolve to the same
// entity without a second pipeline pass.
func (r *Resolver) ResolveBatch(ctx context.Context, entities []ProposedEntity, ownerID string) ([]*ResolvedEntity, error) {
	resolved := make([]*ResolvedEntity, 0, len(entities))
	seen := make(map[string]*ResolvedEntity)

	for _, entity := range entities {
		entityType := entity.Type
		if entityType == "" {
			entityType = string(ontology.EntityConcept)
		}
		normalized := ontology.NormalizeName(entity.Name)

		if prior, ok := seen[normalized]; ok {
			resolved = append(resolved, prior)
			continue
		}

		result, err := r.Resolve(ctx, entity.Name, entityType, ownerID)
		if err != nil {
			return nil, err
		}
		seen[normalized] = result

		canonical := ontology.CanonicalName(entity.Name)
		if ontology.NormalizeName(canonical) != normalized {
			seen[ontology.NormalizeName(canonical)] = result
		}

		resolved = append(resolved, result)
	}

	return resolved, nil
}

// findByName runs the owner-scoped lookup first, then global
func (r *Resolver) findByName(ctx context.Context, normalized, ownerID string) (*graph.EntityRef, error) {
	if ownerID != "" {
		ref, err := r.store.FindEntityByName(ctx, normalized, ownerID)
		if err != nil || ref != nil {
			return ref, err
		}
	}
	return r.store.FindEntityByName(ctx, normalized, "")
}

func (r *Resolver) findByAlias(ctx context.Context, normalized, ownerID string) (*graph.EntityRef, error) {
	if ownerID != "" {
		ref, err := r.store.FindEntityByAlias(ctx, normalized, ownerID)
		if err != nil || ref != nil {
			return ref, err
		}
	}
	return r.store.FindEntityByAlias(ctx, normalized, "")
}

// findByFuzzy scores fulltext candidates with the indel ratio, falling back
// to batched candidate loading when the fulltext index is unavailable.
// Errors degrade to no match.
func (r *Resolver) findByFuzzy(ctx context.Context, normalized, ownerID string) (*graph.EntityRef, int) {
	candidates, err := r.store.FullTextEntityCandidates(ctx, normalized, ownerID, fuzzyMatchLimit)
	if err != nil {
		r.logger.Debug("Fulltext search unavailable, using batched loading", zap.Error(err))
		return r.findByFuzzyBatched(ctx, normalized, ownerID)
	}
	if len(candidates) == 0 {
		candidates = r.loadCandidates(ctx, ownerID)
	}
	return r.bestFuzzyMatch(normalized, candidates)
}

func (r *Resolver) findByFuzzyBatched(ctx context.Context, normalized, ownerID string) (*graph.EntityRef, int) {
	var best *graph.EntityRef
	bestScore := 0

	for offset := 0; offset < fuzzyMatchLimit; offset += fuzzyMatchBatchSize {
		batch, err := r.store.ListEntityCandidates(ctx, ownerID, offset, fuzzyMatchBatchSize)
		if err != nil {
			r.logger.Warn("Candidate batch load failed", zap.Error(err))
			return nil, 0
		}
		if len(batch) == 0 {
			break
		}
		if match, score := r.bestFuzzyMatch(normalized, batch); score > bestScore {
			best = match
			bestScore = score
		}
	}

	if best == nil && ownerID != "" {
		global, err := r.store.ListEntityCandidates(ctx, "", 0, fuzzyMatchLimit)
		if err != nil {
			return nil, 0
		}
		return r.bestFuzzyMatch(normalized, global)
	}
	return best, bestScore
}

func (r *Resolver) loadCandidates(ctx context.Context, ownerID string) []graph.EntityRef {
	if ownerID != "" {
		scoped, err := r.store.ListEntityCandidates(ctx, ownerID, 0, fuzzyMatchLimit)
		if err == nil && len(scoped) > 0 {
			return scoped
		}
	}
	global, err := r.store.ListEntityCandidates(ctx, "", 0, fuzzyMatchLimit)
	if err != nil {
		r.logger.Warn("Candidate load failed", zap.Error(err))
		return nil
	}
	return global
}

func (r *Resolver) bestFuzzyMatch(normalized string, candidates []graph.EntityRef) (*graph.EntityRef, int) {
	var best *graph.EntityRef
	bestScore := 0
	for i := range candidates {
		score := similarity.Ratio(normalized, ontology.NormalizeName(candidates[i].Name))
		if score >= r.fuzzyThreshold && score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}
	return best, bestScore
}

// findByEmbedding embeds the entity text and looks for a close neighbor,
// GDS first with a brute-force fallback. All failures degrade to no match.
func (r *Resolver) findByEmbedding(ctx context.Context, name, entityType, ownerID string) *graph.EmbeddingMatch {
	embedding, err := r.embedder.EmbedEntity(ctx, name, entityType)
	if err != nil {
		r.logger.Warn("Embedding service failed during resolution", zap.Error(err))
		return nil
	}

	if ownerID != "" {
		match, err := r.store.FindEntityByEmbeddingGDS(ctx, embedding, r.embeddingThreshold, ownerID)
		if err != nil {
			return r.findByEmbeddingManual(ctx, embedding, ownerID)
		}
		if match != nil {
			return match
		}
	}

	match, err := r.store.FindEntityByEmbeddingGDS(ctx, embedding, r.embeddingThreshold, "")
	if err != nil {
		return r.findByEmbeddingManual(ctx, embedding, ownerID)
	}
	return match
}

func (r *Resolver) findByEmbeddingManual(ctx context.Context, embedding []float64, ownerID string) *graph.EmbeddingMatch {
	if ownerID != "" {
		if match := r.scoreEmbeddings(ctx, embedding, ownerID); match != nil {
			return match
		}
	}
	return r.scoreEmbeddings(ctx, embedding, "")
}

func (r *Resolver) scoreEmbeddings(ctx context.Context, embedding []float64, ownerID string) *graph.EmbeddingMatch {
	candidates, err := r.store.ListEntityEmbeddings(ctx, ownerID, fuzzyMatchLimit)
	if err != nil {
		r.logger.Warn("Embedding candidate load failed", zap.Error(err))
		return nil
	}

	var best *graph.EmbeddingMatch
	bestSimilarity := r.embeddingThreshold
	for _, candidate := range candidates {
		score := similarity.Cosine(embedding, candidate.Embedding)
		if score > bestSimilarity {
			bestSimilarity = score
			best = &graph.EmbeddingMatch{
				ID:         candidate.ID,
				Name:       candidate.Name,
				Type:       candidate.Type,
				Similarity: score,
			}
		}
	}
	return best
}

func resolvedFrom(ref *graph.EntityRef, method MatchMethod, confidence float64) *ResolvedEntity {
	return &ResolvedEntity{
		ID:          ref.ID,
		Name:        ref.Name,
		Type:        ref.Type,
		MatchMethod: method,
		Confidence:  confidence,
	}
}
