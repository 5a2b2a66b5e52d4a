package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"decision-graph/backend/pkg/logger"
)

// Input roles for embedding generation. Models that distinguish them embed
// search queries and stored passages differently.
const (
	EmbedRoleQuery   = "query"
	EmbedRolePassage = "passage"
)

// Embedder generates embedding vectors through an OpenAI-compatible
// endpoint.
type Embedder struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewEmbedder creates an embedder against the given endpoint
func NewEmbedder(baseURL, apiKey, model string) *Embedder {
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"

	return &Embedder{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger.Named("embedder"),
	}
}

// EmbedText generates an embedding for a single text. role is
// EmbedRoleQuery for search queries, EmbedRolePassage for stored documents.
func (e *Embedder) EmbedText(ctx context.Context, text, role string) ([]float64, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
		User:  role,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	vector := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float64(v)
	}

	e.logger.Debug("generated embedding",
		zap.String("role", role),
		zap.Int("dimensions", len(vector)),
	)
	return vector, nil
}

// EmbedDecision embeds a decision from the concatenation of its key fields
func (e *Embedder) EmbedDecision(ctx context.Context, trigger, decisionContext string, options []string, decision, rationale string) ([]float64, error) {
	parts := []string{
		fmt.Sprintf("Decision Trigger: %s", trigger),
		fmt.Sprintf("Context: %s", decisionContext),
		fmt.Sprintf("Options Considered: %s", strings.Join(options, ", ")),
		fmt.Sprintf("Final Decision: %s", decision),
		fmt.Sprintf("Rationale: %s", rationale),
	}
	return e.EmbedText(ctx, strings.Join(parts, "\n"), EmbedRolePassage)
}

// EmbedEntity embeds an entity as "{type}: {name}"
func (e *Embedder) EmbedEntity(ctx context.Context, name, entityType string) ([]float64, error) {
	return e.EmbedText(ctx, fmt.Sprintf("%s: %s", entityType, name), EmbedRolePassage)
}
