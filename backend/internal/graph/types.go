package graph

import "time"

// ============================================================================
// Graph Types
// ============================================================================

// Entity represents a canonical concept/technology node
type Entity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Aliases   []string  `json:"aliases,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// EntityRef is a lightweight entity reference returned by lookup and
// candidate queries.
type EntityRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// EntityCandidate carries an embedding for brute-force similarity scoring
type EntityCandidate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingMatch is an entity matched by vector similarity
type EmbeddingMatch struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Similarity float64 `json:"similarity"`
}

// DecisionTrace represents a recorded decision
type DecisionTrace struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	Context     string    `json:"context"`
	Options     []string  `json:"options"`
	Decision    string    `json:"decision"`
	Rationale   string    `json:"rationale"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
	OwnerID     string    `json:"owner_id,omitempty"`
	Embedding   []float64 `json:"embedding,omitempty"`
	ProjectName string    `json:"project_name,omitempty"`
}

// DecisionSummary carries the fields needed to compare two decisions
type DecisionSummary struct {
	ID        string `json:"id"`
	Trigger   string `json:"trigger"`
	Decision  string `json:"decision"`
	Rationale string `json:"rationale"`
	CreatedAt string `json:"created_at"`
}

// SimilarDecision is a decision matched by embedding similarity
type SimilarDecision struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// DecisionEmbedding pairs a decision id with its stored embedding for
// brute-force similarity fallback.
type DecisionEmbedding struct {
	ID        string    `json:"id"`
	Embedding []float64 `json:"embedding"`
}

// ============================================================================
// Validation Query Rows
// ============================================================================

// Cycle is a circular DEPENDS_ON chain
type Cycle struct {
	Names []string `json:"names"`
	IDs   []string `json:"ids"`
}

// LowConfidenceRelationship is an edge below the confidence threshold
type LowConfidenceRelationship struct {
	SourceID   string  `json:"source_id"`
	SourceName string  `json:"source_name"`
	TargetID   string  `json:"target_id"`
	TargetName string  `json:"target_name"`
	RelType    string  `json:"rel_type"`
	Confidence float64 `json:"confidence"`
}

// SelfReferentialEdge is an edge from a node to itself
type SelfReferentialEdge struct {
	NodeID  string `json:"node_id"`
	Name    string `json:"name"`
	RelType string `json:"rel_type"`
}

// DecisionPairEdge is an entity-only relationship found between two
// DecisionTrace nodes.
type DecisionPairEdge struct {
	FromID      string `json:"from_id"`
	FromTrigger string `json:"from_trigger"`
	ToID        string `json:"to_id"`
	ToTrigger   string `json:"to_trigger"`
	RelType     string `json:"rel_type"`
}
