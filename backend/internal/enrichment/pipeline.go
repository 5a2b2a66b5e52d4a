package enrichment

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"decision-graph/backend/internal/graph"
	"decision-graph/backend/internal/ontology"
	"decision-graph/backend/internal/resolver"
	"decision-graph/backend/internal/similarity"
	"decision-graph/backend/pkg/logger"
)

// ceiling on decision embeddings loaded for brute-force similarity
const similarityCandidateLimit = 500

// Store is the subset of graph operations the pipeline writes through
type Store interface {
	CreateDecision(ctx context.Context, decision graph.DecisionTrace) error
	CreateEntityWithInvolvement(ctx context.Context, entity graph.Entity, decisionID string, weight float64) error
	LinkEntityToDecision(ctx context.Context, entityID, decisionID string, weight float64) error
	CreateEntityRelationship(ctx context.Context, fromName, toName string, relType ontology.RelationType, confidence float64) error
	FindSimilarDecisions(ctx context.Context, decisionID string, threshold float64, ownerID string) ([]graph.SimilarDecision, error)
	ListDecisionEmbeddings(ctx context.Context, excludeID, ownerID string, limit int) ([]graph.DecisionEmbedding, error)
	CreateSimilarityLink(ctx context.Context, fromID, toID string, score float64, tier string) error
	CreateInfluenceLinks(ctx context.Context, decisionID, ownerID string) (int, error)
	GetDecisionSummary(ctx context.Context, decisionID string) (*graph.DecisionSummary, error)
	CreateDecisionRelationship(ctx context.Context, fromID, toID string, relType ontology.RelationType, confidence float64) error
}

// EntityResolver maps extracted mentions onto graph entities
type EntityResolver interface {
	Resolve(ctx context.Context, name, entityType, ownerID string) (*resolver.ResolvedEntity, error)
}

// EmbeddingService produces decision and entity embeddings
type EmbeddingService interface {
	EmbedDecision(ctx context.Context, trigger, decisionContext string, options []string, decision, rationale string) ([]float64, error)
	EmbedEntity(ctx context.Context, name, entityType string) ([]float64, error)
}

// Pipeline enriches a raw decision into graph structure: the decision node
// with its embedding, resolved entities with INVOLVES edges, typed entity
// relationships, similarity links, decision-pair links, and temporal
// influence chains.
//
// Only the decision node write is fatal. Every later step degrades to a
// logged warning, so a flaky LLM or embedding service cannot lose the
// decision itself.
type Pipeline struct {
	store    Store
	resolver EntityResolver
	embedder EmbeddingService
	ext      *Extractor
	// SIMILAR_TO floor and the tier boundary above it
	similarityThreshold     float64
	highConfidenceThreshold float64
	logger                  *zap.Logger
}

// NewPipeline wires the enrichment pipeline
func NewPipeline(store Store, entityResolver EntityResolver, embedder EmbeddingService, ext *Extractor, similarityThreshold, highConfidenceThreshold float64) *Pipeline {
	return &Pipeline{
		store:                   store,
		resolver:                entityResolver,
		embedder:                embedder,
		ext:                     ext,
		similarityThreshold:     similarityThreshold,
		highConfidenceThreshold: highConfidenceThreshold,
		logger:                  logger.Named("enrichment"),
	}
}

// SaveDecision persists and enriches a decision, returning its id
func (p *Pipeline) SaveDecision(ctx context.Context, draft DecisionDraft, source, ownerID string) (string, error) {
	decisionID := uuid.New().String()
	if draft.Source != "" {
		source = draft.Source
	}

	fullText := strings.TrimSpace(strings.Join([]string{
		draft.Trigger, draft.Context, draft.Decision, draft.Rationale,
	}, " "))
	category := ClassifyDecision(fullText)

	embedding, err := p.embedder.EmbedDecision(ctx, draft.Trigger, draft.Context, draft.Options, draft.Decision, draft.Rationale)
	if err != nil {
		p.logger.Warn("Decision embedding failed", zap.Error(err))
		embedding = nil
	}

	err = p.store.CreateDecision(ctx, graph.DecisionTrace{
		ID:          decisionID,
		Trigger:     draft.Trigger,
		Context:     draft.Context,
		Options:     draft.Options,
		Decision:    draft.Decision,
		Rationale:   draft.Rationale,
		Confidence:  draft.Confidence,
		CreatedAt:   time.Now().UTC(),
		Source:      source,
		OwnerID:     ownerID,
		Embedding:   embedding,
		ProjectName: draft.ProjectName,
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("Decision created",
		zap.String("decision_id", decisionID),
		zap.String("category", string(category)),
		zap.String("owner_id", ownerID),
	)

	resolved := p.attachEntities(ctx, draft, decisionID, fullText, category, ownerID)

	if len(resolved) >= 2 {
		p.attachEntityRelationships(ctx, resolved, fullText, ownerID)
	}

	if embedding != nil {
		p.linkSimilarDecisions(ctx, decisionID, embedding, ownerID)
	}

	if _, err := p.store.CreateInfluenceLinks(ctx, decisionID, ownerID); err != nil {
		p.logger.Warn("Influence linking failed", zap.Error(err))
	}

	return decisionID, nil
}

// attachEntities extracts mentions, resolves each against the graph, and
// creates or links INVOLVES edges weighted by calibrated confidence.
func (p *Pipeline) attachEntities(ctx context.Context, draft DecisionDraft, decisionID, fullText string, category Category, ownerID string) []ExtractedEntity {
	mentions, err := p.ext.ExtractEntities(ctx, ownerID, fullText, category)
	if err != nil {
		p.logger.Warn("Entity extraction failed", zap.Error(err))
		return nil
	}
	p.logger.Info("Entities extracted", zap.Int("count", len(mentions)))

	attached := make([]ExtractedEntity, 0, len(mentions))
	for _, mention := range mentions {
		weight := CalibrateConfidence(mention.Confidence, draft)

		res, err := p.resolver.Resolve(ctx, mention.Name, mention.Type, ownerID)
		if err != nil {
			p.logger.Warn("Entity resolution failed",
				zap.String("name", mention.Name),
				zap.Error(err),
			)
			continue
		}

		if res.IsNew {
			entity := graph.Entity{
				ID:      res.ID,
				Name:    res.Name,
				Type:    res.Type,
				Aliases: res.Aliases,
			}
			if vec, err := p.embedder.EmbedEntity(ctx, res.Name, res.Type); err == nil {
				entity.Embedding = vec
			}
			if err := p.store.CreateEntityWithInvolvement(ctx, entity, decisionID, weight); err != nil {
				p.logger.Warn("Entity creation failed",
					zap.String("name", res.Name),
					zap.Error(err),
				)
				continue
			}
		} else {
			if err := p.store.LinkEntityToDecision(ctx, res.ID, decisionID, weight); err != nil {
				p.logger.Warn("Entity linking failed",
					zap.String("entity_id", res.ID),
					zap.Error(err),
				)
				continue
			}
			p.logger.Info("Linked existing entity",
				zap.String("name", res.Name),
				zap.String("method", string(res.MatchMethod)),
			)
		}

		attached = append(attached, ExtractedEntity{
			Name:       res.Name,
			Type:       res.Type,
			Confidence: weight,
		})
	}
	return attached
}

func (p *Pipeline) attachEntityRelationships(ctx context.Context, entities []ExtractedEntity, fullText, ownerID string) {
	rels, err := p.ext.ExtractEntityRelationships(ctx, ownerID, entities, fullText)
	if err != nil {
		p.logger.Warn("Relationship extraction failed", zap.Error(err))
		return
	}
	p.logger.Info("Entity relationships extracted", zap.Int("count", len(rels)))

	for _, rel := range rels {
		err := p.store.CreateEntityRelationship(ctx, rel.From, rel.To, ontology.RelationType(rel.Type), rel.Confidence)
		if err != nil {
			p.logger.Warn("Relationship creation failed",
				zap.String("from", rel.From),
				zap.String("to", rel.To),
				zap.Error(err),
			)
		}
	}
}

// linkSimilarDecisions finds the closest stored decisions and records
// SIMILAR_TO edges, then checks the strongest match for a supersedes or
// contradicts relationship.
func (p *Pipeline) linkSimilarDecisions(ctx context.Context, decisionID string, embedding []float64, ownerID string) {
	similar, err := p.store.FindSimilarDecisions(ctx, decisionID, p.similarityThreshold, ownerID)
	if err != nil {
		p.logger.Debug("Vector similarity query failed, scoring in process", zap.Error(err))
		similar = p.similarDecisionsManual(ctx, decisionID, embedding, ownerID)
	}
	if len(similar) == 0 {
		return
	}

	for _, match := range similar {
		tier := "moderate"
		if match.Score >= p.highConfidenceThreshold {
			tier = "high"
		}
		if err := p.store.CreateSimilarityLink(ctx, decisionID, match.ID, match.Score, tier); err != nil {
			p.logger.Warn("Similarity link failed",
				zap.String("similar_id", match.ID),
				zap.Error(err),
			)
			continue
		}
		p.logger.Info("Linked similar decision",
			zap.String("similar_id", match.ID),
			zap.Float64("score", match.Score),
			zap.String("tier", tier),
		)
	}

	p.analyzeStrongestMatch(ctx, decisionID, similar[0].ID, ownerID)
}

// similarDecisionsManual is the brute-force fallback when the store's
// vector query is unavailable.
func (p *Pipeline) similarDecisionsManual(ctx context.Context, decisionID string, embedding []float64, ownerID string) []graph.SimilarDecision {
	candidates, err := p.store.ListDecisionEmbeddings(ctx, decisionID, ownerID, similarityCandidateLimit)
	if err != nil {
		p.logger.Warn("Decision embedding load failed", zap.Error(err))
		return nil
	}

	var similar []graph.SimilarDecision
	for _, candidate := range candidates {
		score := similarity.Cosine(embedding, candidate.Embedding)
		if score > p.similarityThreshold {
			similar = append(similar, graph.SimilarDecision{ID: candidate.ID, Score: score})
		}
	}
	sort.Slice(similar, func(i, j int) bool { return similar[i].Score > similar[j].Score })
	if len(similar) > 5 {
		similar = similar[:5]
	}
	return similar
}

// analyzeStrongestMatch compares the new decision with its best similarity
// match for a SUPERSEDES or CONTRADICTS relationship.
func (p *Pipeline) analyzeStrongestMatch(ctx context.Context, decisionID, matchID, ownerID string) {
	newer, err := p.store.GetDecisionSummary(ctx, decisionID)
	if err != nil || newer == nil {
		return
	}
	older, err := p.store.GetDecisionSummary(ctx, matchID)
	if err != nil || older == nil {
		return
	}

	link, err := p.ext.AnalyzeDecisionPair(ctx, ownerID,
		DecisionView{Trigger: older.Trigger, Decision: older.Decision, Rationale: older.Rationale, CreatedAt: older.CreatedAt},
		DecisionView{Trigger: newer.Trigger, Decision: newer.Decision, Rationale: newer.Rationale, CreatedAt: newer.CreatedAt},
	)
	if err != nil {
		p.logger.Warn("Decision pair analysis failed", zap.Error(err))
		return
	}
	if link == nil {
		return
	}

	if err := p.store.CreateDecisionRelationship(ctx, decisionID, matchID, link.Type, link.Confidence); err != nil {
		p.logger.Warn("Decision relationship creation failed", zap.Error(err))
		return
	}
	p.logger.Info("Decision relationship recorded",
		zap.String("type", string(link.Type)),
		zap.String("with", matchID),
		zap.String("reasoning", link.Reasoning),
	)
}
