package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"decision-graph/backend/internal/adapter"
	"decision-graph/backend/internal/enrichment"
	"decision-graph/backend/internal/graph"
	"decision-graph/backend/internal/resolver"
	"decision-graph/backend/internal/validator"
	"decision-graph/backend/pkg/config"
	apperrors "decision-graph/backend/pkg/errors"
	"decision-graph/backend/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Verify Neo4j connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	// Redis backs the response cache and rate limiter; the server still
	// runs without it, uncached and unlimited
	redisClient, err := adapter.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Warn("Redis unavailable, running without cache and rate limiting", zap.Error(err))
		redisClient = nil
	}

	// Initialize dependencies
	graphRepo := graph.NewRepository(driver)
	limiter := adapter.NewRateLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitAnonymous, cfg.RateLimitWindow)
	responseCache := adapter.NewResponseCache(redisClient, cfg.CacheEnabled, cfg.CacheTTL, cfg.PromptVersion)
	llmClient := adapter.NewClient(adapter.ClientOptions{
		BaseURL:         cfg.LLMBaseURL,
		APIKey:          cfg.LLMAPIKey,
		Model:           cfg.ModelID,
		FallbackModel:   cfg.FallbackModelID,
		FallbackEnabled: cfg.FallbackEnabled,
		MaxRetries:      cfg.LLMMaxRetries,
		RetryBaseDelay:  time.Duration(cfg.LLMRetryBaseDelay * float64(time.Second)),
		MaxPromptTokens: cfg.MaxPromptTokens,
		Limiter:         limiter,
	})
	embedder := adapter.NewEmbedder(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelID)

	entityResolver := resolver.NewResolver(graphRepo, embedder, cfg.FuzzyMatchThreshold, cfg.EmbeddingSimilarityThreshold)
	extractor := enrichment.NewExtractor(llmClient, responseCache)
	pipeline := enrichment.NewPipeline(graphRepo, entityResolver, embedder, extractor, cfg.SimilarityThreshold, cfg.HighConfidenceThreshold)
	graphValidator := validator.NewValidator(graphRepo, cfg.FuzzyMatchThreshold)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		// Save a decision and run enrichment
		api.POST("/decisions", func(c *gin.Context) {
			ctx := c.Request.Context()

			var req struct {
				enrichment.DecisionDraft
				UserID string `json:"user_id"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if req.Decision == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "decision is required"})
				return
			}

			decisionID, err := pipeline.SaveDecision(ctx, req.DecisionDraft, "api", req.UserID)
			if err != nil {
				status, message := errorResponse(err, "Failed to save decision")
				log.Error("Failed to save decision", zap.Error(err))
				c.JSON(status, gin.H{"error": message})
				return
			}

			c.JSON(http.StatusCreated, gin.H{"decision_id": decisionID})
		})

		// Extract decisions from conversation text and save each one
		api.POST("/decisions/extract", func(c *gin.Context) {
			ctx := c.Request.Context()

			var req struct {
				Text        string `json:"text" binding:"required"`
				UserID      string `json:"user_id"`
				ProjectName string `json:"project_name"`
				Source      string `json:"source"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			owner := req.UserID
			drafts, err := extractor.ExtractDecisions(ctx, owner, req.Text)
			if err != nil {
				status, message := errorResponse(err, "Failed to extract decisions")
				log.Error("Failed to extract decisions", zap.Error(err))
				c.JSON(status, gin.H{"error": message})
				return
			}

			source := req.Source
			if source == "" {
				source = "conversation"
			}

			ids := make([]string, 0, len(drafts))
			for _, draft := range drafts {
				draft.ProjectName = req.ProjectName
				decisionID, err := pipeline.SaveDecision(ctx, draft, source, req.UserID)
				if err != nil {
					log.Error("Failed to save extracted decision", zap.Error(err))
					continue
				}
				ids = append(ids, decisionID)
			}

			c.JSON(http.StatusOK, gin.H{
				"decisions":    drafts,
				"decision_ids": ids,
			})
		})

		// Resolve entity mentions against the graph
		api.POST("/entities/resolve", func(c *gin.Context) {
			ctx := c.Request.Context()

			var req struct {
				Entities []resolver.ProposedEntity `json:"entities" binding:"required"`
				UserID   string                    `json:"user_id"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			resolved, err := entityResolver.ResolveBatch(ctx, req.Entities, req.UserID)
			if err != nil {
				log.Error("Failed to resolve entities", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve entities"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"entities": resolved})
		})

		// Merge duplicate entities in the caller's subgraph
		api.POST("/entities/merge", func(c *gin.Context) {
			ctx := c.Request.Context()

			var req struct {
				UserID string `json:"user_id"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			stats, err := entityResolver.MergeDuplicates(ctx, req.UserID)
			if err != nil {
				log.Error("Failed to merge duplicates", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to merge duplicates"})
				return
			}

			c.JSON(http.StatusOK, stats)
		})

		// Run all consistency checks
		api.GET("/graph/validate", func(c *gin.Context) {
			ctx := c.Request.Context()

			issues := graphValidator.ValidateAll(ctx, c.Query("user_id"))
			if issues == nil {
				issues = []validator.Issue{}
			}

			c.JSON(http.StatusOK, gin.H{
				"issues": issues,
				"count":  len(issues),
			})
		})

		// Aggregate check results by severity and type
		api.GET("/graph/validate/summary", func(c *gin.Context) {
			ctx := c.Request.Context()

			summary := graphValidator.GetSummary(ctx, c.Query("user_id"))
			c.JSON(http.StatusOK, summary)
		})

		// Apply safe automatic fixes
		api.POST("/graph/autofix", func(c *gin.Context) {
			ctx := c.Request.Context()

			var req struct {
				UserID     string                `json:"user_id"`
				IssueTypes []validator.IssueType `json:"issue_types"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			stats, err := graphValidator.AutoFix(ctx, req.UserID, req.IssueTypes)
			if err != nil {
				log.Error("Failed to apply fixes", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply fixes"})
				return
			}

			c.JSON(http.StatusOK, stats)
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// errorResponse maps known error types onto HTTP statuses
func errorResponse(err error, fallback string) (int, string) {
	switch {
	case apperrors.IsErrorType(err, apperrors.ErrorTypeRateLimit):
		return http.StatusTooManyRequests, "Rate limit exceeded, try again later"
	case apperrors.IsErrorType(err, apperrors.ErrorTypeValidation):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, fallback
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
