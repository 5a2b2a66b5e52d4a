package enrichment

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/zap"

	"decision-graph/backend/internal/adapter"
	"decision-graph/backend/internal/ontology"
	"decision-graph/backend/pkg/logger"
)

// defaults applied to malformed extractions
const (
	defaultTrigger    = "Unknown trigger"
	defaultConfidence = 0.5
	defaultEntityType = "concept"
)

// cache kinds namespacing llm responses per extraction type
const (
	cacheKindDecisions     = "decisions"
	cacheKindEntities      = "entities"
	cacheKindRelationships = "relationships"
)

// LLM generates text completions
type LLM interface {
	Generate(ctx context.Context, callerID, systemPrompt, prompt string) (string, error)
}

// Cache stores raw LLM responses keyed by input text and extraction kind
type Cache interface {
	Get(ctx context.Context, text, kind string) (string, bool)
	Set(ctx context.Context, text, kind, response string)
}

// DecisionDraft is an unenriched decision record, either extracted from a
// conversation or submitted directly.
type DecisionDraft struct {
	Trigger     string   `json:"trigger"`
	Context     string   `json:"context"`
	Options     []string `json:"options"`
	Decision    string   `json:"decision"`
	Rationale   string   `json:"rationale"`
	Confidence  float64  `json:"confidence"`
	Source      string   `json:"source,omitempty"`
	ProjectName string   `json:"project_name,omitempty"`
}

// ExtractedEntity is one entity mention from decision text
type ExtractedEntity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// EntityRelationship is a proposed typed edge between two extracted entities
type EntityRelationship struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// DecisionView carries the comparable fields of a stored decision
type DecisionView struct {
	Trigger   string
	Decision  string
	Rationale string
	CreatedAt string
}

// DecisionLink is the outcome of comparing two decisions
type DecisionLink struct {
	Type       ontology.RelationType `json:"type"`
	Confidence float64               `json:"confidence"`
	Reasoning  string                `json:"reasoning"`
}

// Extractor turns unstructured text into decisions, entities and
// relationships through cached LLM calls.
type Extractor struct {
	llm    LLM
	cache  Cache
	logger *zap.Logger
}

// NewExtractor creates an extractor. cache may not be nil; use a disabled
// ResponseCache to run uncached.
func NewExtractor(llm LLM, cache Cache) *Extractor {
	return &Extractor{
		llm:    llm,
		cache:  cache,
		logger: logger.Named("extractor"),
	}
}

// wire shapes for LLM responses; confidence is a pointer so a missing field
// can be defaulted without clobbering an explicit zero
type rawDecision struct {
	Trigger    string          `json:"trigger"`
	Context    string          `json:"context"`
	Options    json.RawMessage `json:"options"`
	Decision   string          `json:"decision"`
	Rationale  string          `json:"rationale"`
	Confidence *float64        `json:"confidence"`
}

type entityExtractionResult struct {
	Entities  []ExtractedEntity `json:"entities"`
	Reasoning string            `json:"reasoning"`
}

type relationshipExtractionResult struct {
	Relationships []EntityRelationship `json:"relationships"`
	Reasoning     string               `json:"reasoning"`
}

type decisionLinkResult struct {
	Relationship *string  `json:"relationship"`
	Confidence   *float64 `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
}

// ExtractDecisions pulls decision records out of conversation text. Entries
// without a decision statement are dropped; other missing fields get
// defaults.
func (e *Extractor) ExtractDecisions(ctx context.Context, callerID, conversationText string) ([]DecisionDraft, error) {
	if cached, ok := e.cache.Get(ctx, conversationText, cacheKindDecisions); ok {
		if drafts, err := parseDecisions(cached); err == nil {
			e.logger.Info("Using cached decision extraction")
			return drafts, nil
		}
	}

	prompt := buildDecisionExtractionPrompt(conversationText)
	response, err := e.llm.Generate(ctx, callerID, "", prompt)
	if err != nil {
		return nil, err
	}

	extracted, ok := adapter.ExtractJSON(response)
	if !ok {
		e.logger.Warn("Failed to parse decision extraction response")
		return nil, nil
	}
	drafts, err := parseDecisions(extracted)
	if err != nil {
		e.logger.Warn("Malformed decision extraction payload", zap.Error(err))
		return nil, nil
	}

	e.cache.Set(ctx, conversationText, cacheKindDecisions, extracted)
	return drafts, nil
}

func parseDecisions(payload string) ([]DecisionDraft, error) {
	var raw []rawDecision
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, err
	}

	drafts := make([]DecisionDraft, 0, len(raw))
	for _, d := range raw {
		draft := applyDecisionDefaults(d)
		if strings.TrimSpace(draft.Decision) == "" {
			continue
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

func applyDecisionDefaults(raw rawDecision) DecisionDraft {
	draft := DecisionDraft{
		Trigger:    strings.TrimSpace(raw.Trigger),
		Context:    raw.Context,
		Decision:   raw.Decision,
		Rationale:  raw.Rationale,
		Confidence: defaultConfidence,
	}
	if draft.Trigger == "" {
		draft.Trigger = defaultTrigger
	}
	if raw.Confidence != nil {
		draft.Confidence = *raw.Confidence
	}
	// options may arrive as something other than a string list; anything
	// unparseable becomes the empty list
	if len(raw.Options) > 0 {
		var options []string
		if err := json.Unmarshal(raw.Options, &options); err == nil {
			draft.Options = options
		}
	}
	if draft.Options == nil {
		draft.Options = []string{}
	}
	return draft
}

// ExtractEntities pulls typed entity mentions out of decision text. Unknown
// entity types fall back to concept.
func (e *Extractor) ExtractEntities(ctx context.Context, callerID, text string, category Category) ([]ExtractedEntity, error) {
	if cached, ok := e.cache.Get(ctx, text, cacheKindEntities); ok {
		var entities []ExtractedEntity
		if err := json.Unmarshal([]byte(cached), &entities); err == nil {
			e.logger.Info("Using cached entity extraction")
			return entities, nil
		}
	}

	prompt := buildEntityExtractionPrompt(text, category)
	response, err := e.llm.Generate(ctx, callerID, "", prompt)
	if err != nil {
		return nil, err
	}

	var result entityExtractionResult
	if err := adapter.ExtractJSONInto(response, &result); err != nil {
		e.logger.Warn("Failed to parse entity extraction response", zap.Error(err))
		return nil, nil
	}
	if result.Reasoning != "" {
		e.logger.Debug("Entity reasoning", zap.String("reasoning", result.Reasoning))
	}

	entities := make([]ExtractedEntity, 0, len(result.Entities))
	for _, entity := range result.Entities {
		if strings.TrimSpace(entity.Name) == "" {
			continue
		}
		if !ontology.ValidEntityType(entity.Type) {
			entity.Type = defaultEntityType
		}
		if entity.Confidence == 0 {
			entity.Confidence = 0.8
		}
		entities = append(entities, entity)
	}

	if encoded, err := json.Marshal(entities); err == nil {
		e.cache.Set(ctx, text, cacheKindEntities, string(encoded))
	}
	return entities, nil
}

// ExtractEntityRelationships proposes typed edges between extracted
// entities. Each proposal is validated against the ontology; an invalid
// entity-only type is downgraded to RELATED_TO at reduced confidence, other
// invalid proposals are dropped.
func (e *Extractor) ExtractEntityRelationships(ctx context.Context, callerID string, entities []ExtractedEntity, decisionContext string) ([]EntityRelationship, error) {
	if len(entities) < 2 {
		return nil, nil
	}

	names := make([]string, 0, len(entities))
	typesByName := make(map[string]ontology.EntityType, len(entities))
	for _, entity := range entities {
		names = append(names, entity.Name)
		typesByName[strings.ToLower(entity.Name)] = ontology.EntityType(entity.Type)
	}
	sort.Strings(names)

	cacheText := strings.Join(names, ",") + "|" + decisionContext
	if cached, ok := e.cache.Get(ctx, cacheText, cacheKindRelationships); ok {
		var rels []EntityRelationship
		if err := json.Unmarshal([]byte(cached), &rels); err == nil {
			e.logger.Info("Using cached relationship extraction")
			return rels, nil
		}
	}

	prompt := buildEntityRelationshipPrompt(names, decisionContext)
	response, err := e.llm.Generate(ctx, callerID, "", prompt)
	if err != nil {
		return nil, err
	}

	var result relationshipExtractionResult
	if err := adapter.ExtractJSONInto(response, &result); err != nil {
		e.logger.Warn("Failed to parse relationship extraction response", zap.Error(err))
		return nil, nil
	}
	if result.Reasoning != "" {
		e.logger.Debug("Relationship reasoning", zap.String("reasoning", result.Reasoning))
	}

	validated := e.validateRelationships(result.Relationships, typesByName)

	if encoded, err := json.Marshal(validated); err == nil {
		e.cache.Set(ctx, cacheText, cacheKindRelationships, string(encoded))
	}
	return validated, nil
}

func (e *Extractor) validateRelationships(proposed []EntityRelationship, typesByName map[string]ontology.EntityType) []EntityRelationship {
	validated := make([]EntityRelationship, 0, len(proposed))
	for _, rel := range proposed {
		if rel.From == "" || rel.To == "" {
			continue
		}
		relType := ontology.RelationType(rel.Type)
		if rel.Type == "" {
			relType = ontology.RelRelatedTo
		}
		if rel.Confidence == 0 {
			rel.Confidence = 0.8
		}

		fromType, ok := typesByName[strings.ToLower(rel.From)]
		if !ok {
			fromType = ontology.EntityConcept
		}
		toType, ok := typesByName[strings.ToLower(rel.To)]
		if !ok {
			toType = ontology.EntityConcept
		}

		valid, reason := ontology.ValidateRelationship(relType, fromType, toType)
		if valid {
			rel.Type = string(relType)
			validated = append(validated, rel)
			continue
		}

		e.logger.Warn("Invalid relationship skipped",
			zap.String("from", rel.From),
			zap.String("to", rel.To),
			zap.String("type", string(relType)),
			zap.String("reason", reason),
		)
		if ontology.EntityOnlyRelations[relType] {
			validated = append(validated, EntityRelationship{
				From:       rel.From,
				To:         rel.To,
				Type:       string(ontology.RelRelatedTo),
				Confidence: rel.Confidence * 0.8,
			})
			e.logger.Info("Downgraded to RELATED_TO",
				zap.String("from", rel.From),
				zap.String("to", rel.To),
			)
		}
	}
	return validated
}

// AnalyzeDecisionPair asks whether decision b supersedes or contradicts
// decision a. Returns nil when no significant relationship exists. Pair
// analysis is never cached since the created_at fields make inputs unique.
func (e *Extractor) AnalyzeDecisionPair(ctx context.Context, callerID string, a, b DecisionView) (*DecisionLink, error) {
	prompt := buildDecisionRelationshipPrompt(a, b)
	response, err := e.llm.Generate(ctx, callerID, "", prompt)
	if err != nil {
		return nil, err
	}

	var result decisionLinkResult
	if err := adapter.ExtractJSONInto(response, &result); err != nil {
		e.logger.Warn("Failed to parse decision relationship response", zap.Error(err))
		return nil, nil
	}
	if result.Relationship == nil || *result.Relationship == "" {
		return nil, nil
	}

	relType := ontology.RelationType(*result.Relationship)
	if relType != ontology.RelSupersedes && relType != ontology.RelContradicts {
		e.logger.Warn("Unexpected decision relationship type", zap.String("type", *result.Relationship))
		return nil, nil
	}

	confidence := defaultConfidence
	if result.Confidence != nil {
		confidence = *result.Confidence
	}
	return &DecisionLink{
		Type:       relType,
		Confidence: confidence,
		Reasoning:  result.Reasoning,
	}, nil
}
