package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Redis (response cache + rate limiting)
	RedisURL string

	// Generation service (OpenAI-compatible endpoint)
	LLMBaseURL        string
	LLMAPIKey         string
	ModelID           string
	FallbackModelID   string
	FallbackEnabled   bool
	EmbeddingModelID  string
	MaxPromptTokens   int
	LLMMaxRetries     int
	LLMRetryBaseDelay float64 // seconds

	// Rate limiting
	RateLimitRequests  int // per window, authenticated callers
	RateLimitAnonymous int // per window, anonymous callers
	RateLimitWindow    int // seconds

	// Response cache
	CacheEnabled  bool
	CacheTTL      int // seconds
	PromptVersion string

	// Similarity thresholds
	FuzzyMatchThreshold          float64 // 0-1 scale, compared as 0-100
	EmbeddingSimilarityThreshold float64
	SimilarityThreshold          float64 // decision SIMILAR_TO cutoff
	HighConfidenceThreshold      float64 // SIMILAR_TO "high" tier cutoff

	// Decision embedding field weights. Reserved knobs; the embedding
	// text is currently built unweighted.
	EmbeddingWeightTitle     float64
	EmbeddingWeightDecision  float64
	EmbeddingWeightRationale float64
	EmbeddingWeightContext   float64
	EmbeddingWeightTrigger   float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", "password"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),

		LLMBaseURL:        getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		ModelID:           getEnv("MODEL_ID", "nvidia/llama-3.3-nemotron-super-49b-v1.5"),
		FallbackModelID:   getEnv("FALLBACK_MODEL_ID", "nvidia/llama-3.1-nemotron-70b-instruct"),
		FallbackEnabled:   getEnvBool("FALLBACK_ENABLED", true),
		EmbeddingModelID:  getEnv("EMBEDDING_MODEL_ID", "nvidia/llama-3.2-nv-embedqa-1b-v2"),
		MaxPromptTokens:   getEnvInt("MAX_PROMPT_TOKENS", 12000),
		LLMMaxRetries:     getEnvInt("LLM_MAX_RETRIES", 3),
		LLMRetryBaseDelay: getEnvFloat("LLM_RETRY_BASE_DELAY", 1.0),

		RateLimitRequests:  getEnvInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitAnonymous: getEnvInt("RATE_LIMIT_ANONYMOUS", 10),
		RateLimitWindow:    getEnvInt("RATE_LIMIT_WINDOW", 60),

		CacheEnabled:  getEnvBool("LLM_CACHE_ENABLED", true),
		CacheTTL:      getEnvInt("LLM_CACHE_TTL", 86400),
		PromptVersion: getEnv("PROMPT_VERSION", "v1"),

		FuzzyMatchThreshold:          getEnvFloat("FUZZY_MATCH_THRESHOLD", 0.85),
		EmbeddingSimilarityThreshold: getEnvFloat("EMBEDDING_SIMILARITY_THRESHOLD", 0.90),
		SimilarityThreshold:          getEnvFloat("SIMILARITY_THRESHOLD", 0.85),
		HighConfidenceThreshold:      getEnvFloat("HIGH_CONFIDENCE_SIMILARITY_THRESHOLD", 0.90),

		EmbeddingWeightTitle:     getEnvFloat("EMBEDDING_WEIGHT_TITLE", 1.5),
		EmbeddingWeightDecision:  getEnvFloat("EMBEDDING_WEIGHT_DECISION", 1.2),
		EmbeddingWeightRationale: getEnvFloat("EMBEDDING_WEIGHT_RATIONALE", 1.0),
		EmbeddingWeightContext:   getEnvFloat("EMBEDDING_WEIGHT_CONTEXT", 0.8),
		EmbeddingWeightTrigger:   getEnvFloat("EMBEDDING_WEIGHT_TRIGGER", 0.8),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	if c.FuzzyMatchThreshold <= 0 || c.FuzzyMatchThreshold > 1 {
		return fmt.Errorf("FUZZY_MATCH_THRESHOLD must be in (0, 1]")
	}
	if c.EmbeddingSimilarityThreshold <= 0 || c.EmbeddingSimilarityThreshold > 1 {
		return fmt.Errorf("EMBEDDING_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	// API key is optional for local OpenAI-compatible gateways
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}
