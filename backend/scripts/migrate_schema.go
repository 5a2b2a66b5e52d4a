package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"decision-graph/backend/pkg/config"
	"decision-graph/backend/pkg/logger"
)

// Embedding dimensions of the NV-EmbedQA model
const embeddingDimensions = 2048

func main() {
	force := flag.Bool("force", false, "Force migration even if already applied")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting Neo4j schema migration...")

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

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	// Check if migration already applied
	if !*force {
		applied, err := checkMigrationApplied(ctx, driver)
		if err != nil {
			log.Fatal("Failed to check migration status", zap.Error(err))
		}
		if applied {
			log.Info("Migration already applied. Use -force to reapply.")
			os.Exit(0)
		}
	}

	// Run migrations
	if err := runMigrations(ctx, driver, log); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}

	// Mark migration as applied
	if err := markMigrationApplied(ctx, driver); err != nil {
		log.Warn("Failed to mark migration as applied", zap.Error(err))
	}

	log.Info("Migration completed successfully!")
}

func checkMigrationApplied(ctx context.Context, driver neo4j.DriverWithContext) (bool, error) {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (m:Migration {version: 'decision_graph_v1'})
		RETURN m.applied_at as applied_at
	`

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return false, err
	}

	return result.Next(ctx), nil
}

func markMigrationApplied(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (m:Migration {version: 'decision_graph_v1'})
		SET m.applied_at = datetime(),
		    m.description = 'Decision trace and entity schema with vector and full-text indexes'
	`

	_, err := session.Run(ctx, query, nil)
	return err
}

func runMigrations(ctx context.Context, driver neo4j.DriverWithContext, log *zap.Logger) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	migrations := []struct {
		name        string
		description string
		query       string
	}{
		{
			name:        "Create Constraints",
			description: "Unique id constraints for decisions and entities",
			query: `
				CREATE CONSTRAINT decision_id IF NOT EXISTS FOR (d:DecisionTrace) REQUIRE d.id IS UNIQUE;

				CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE;
			`,
		},
		{
			name:        "Create Indexes",
			description: "Lookup indexes for resolution and scoped queries",
			query: `
				// Decision lookups
				CREATE INDEX decision_created IF NOT EXISTS FOR (d:DecisionTrace) ON (d.created_at);
				CREATE INDEX decision_owner IF NOT EXISTS FOR (d:DecisionTrace) ON (d.owner_id);
				CREATE INDEX decision_source IF NOT EXISTS FOR (d:DecisionTrace) ON (d.source);
				CREATE INDEX decision_project IF NOT EXISTS FOR (d:DecisionTrace) ON (d.project_name);

				// Entity resolution lookups
				CREATE INDEX entity_name IF NOT EXISTS FOR (e:Entity) ON (e.name);
				CREATE INDEX entity_type IF NOT EXISTS FOR (e:Entity) ON (e.type);
				CREATE INDEX entity_aliases IF NOT EXISTS FOR (e:Entity) ON (e.aliases);
			`,
		},
		{
			name:        "Create Vector Indexes",
			description: "Cosine vector indexes for semantic search (Neo4j 5.11+)",
			query: fmt.Sprintf(`
				CREATE VECTOR INDEX decision_embedding IF NOT EXISTS
				FOR (d:DecisionTrace) ON d.embedding
				OPTIONS {indexConfig: {%[1]s: %[3]d, %[2]s: 'cosine'}};

				CREATE VECTOR INDEX entity_embedding IF NOT EXISTS
				FOR (e:Entity) ON e.embedding
				OPTIONS {indexConfig: {%[1]s: %[3]d, %[2]s: 'cosine'}};
			`, "`vector.dimensions`", "`vector.similarity_function`", embeddingDimensions),
		},
		{
			name:        "Create Full-Text Indexes",
			description: "Full-text search indexes for hybrid search and fuzzy candidate lookup",
			query: `
				CREATE FULLTEXT INDEX decision_fulltext IF NOT EXISTS
				FOR (d:DecisionTrace) ON EACH [d.trigger, d.context, d.decision, d.rationale];

				CREATE FULLTEXT INDEX entity_fulltext IF NOT EXISTS
				FOR (e:Entity) ON EACH [e.name];
			`,
		},
		{
			name:        "Backfill Relationship Defaults",
			description: "Default weights on INVOLVES edges created before weighting existed",
			query: `
				MATCH (d:DecisionTrace)-[r:INVOLVES]->(e:Entity)
				WHERE r.weight IS NULL
				SET r.weight = 0.5;
			`,
		},
	}

	for i, migration := range migrations {
		log.Info("Running migration",
			zap.Int("step", i+1),
			zap.Int("total", len(migrations)),
			zap.String("name", migration.name),
			zap.String("description", migration.description),
		)

		// Split query by semicolons and execute each statement
		statements := splitStatements(migration.query)
		for j, stmt := range statements {
			if stmt == "" {
				continue
			}
			_, err := session.Run(ctx, stmt, nil)
			if err != nil {
				// Some errors are expected (e.g., vector indexes on older Neo4j)
				log.Warn("Migration step had an error (may be expected)",
					zap.String("migration", migration.name),
					zap.Int("statement", j+1),
					zap.Error(err),
				)
				// Continue anyway - many of these are idempotent
			}
		}

		log.Info("Migration step completed", zap.String("name", migration.name))
	}

	return nil
}

// splitStatements splits a Cypher script into individual statements
// Simple approach: split by semicolon and trim whitespace
func splitStatements(script string) []string {
	// Remove single-line comments
	lines := strings.Split(script, "\n")
	var cleanedLines []string
	for _, line := range lines {
		// Remove // comments
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		cleanedLines = append(cleanedLines, line)
	}
	cleanedScript := strings.Join(cleanedLines, "\n")

	// Split by semicolon
	parts := strings.Split(cleanedScript, ";")
	var statements []string
	for _, part := range parts {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	return statements
}
