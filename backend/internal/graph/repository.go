package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"decision-graph/backend/pkg/logger"
)

// Repository handles all Neo4j database operations. Sessions are opened per
// call; the repository itself holds no request state and is safe for
// concurrent use.
type Repository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Named("graph"),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// ownerClause returns a WHERE fragment that scopes nodes under alias to the
// caller's owner plus unowned legacy data. An empty $ownerID matches
// everything, so scoped and global variants share one query.
func ownerClause(alias string) string {
	return fmt.Sprintf("($ownerID = '' OR %s.owner_id = $ownerID OR %s.owner_id IS NULL)", alias, alias)
}
