package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"decision-graph/backend/pkg/logger"
)

// ResponseCache is a content-addressed cache for generation-service
// responses, keyed by prompt version, extraction kind, and a hash of the
// input text. Entries are immutable once written; concurrent writers on the
// same key perform an idempotent overwrite.
//
// All failures degrade to cache misses so a broken redis never blocks
// extraction.
type ResponseCache struct {
	client  *redis.Client
	enabled bool
	ttl     time.Duration
	version string
	logger  *zap.Logger
}

// NewResponseCache creates a response cache. A nil client yields a no-op
// cache.
func NewResponseCache(client *redis.Client, enabled bool, ttlSeconds int, promptVersion string) *ResponseCache {
	return &ResponseCache{
		client:  client,
		enabled: enabled,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		version: promptVersion,
		logger:  logger.Named("llmcache"),
	}
}

// Key builds the cache key for an input text and extraction kind.
// Format: llm:{version}:{kind}:{sha256(text)}
func (c *ResponseCache) Key(text, kind string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("llm:%s:%s:%s", c.version, kind, hex.EncodeToString(sum[:]))
}

// Get returns a cached response for the input, or false on miss
func (c *ResponseCache) Get(ctx context.Context, text, kind string) (string, bool) {
	if !c.enabled || c.client == nil {
		return "", false
	}

	cached, err := c.client.Get(ctx, c.Key(text, kind)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache read failed", zap.String("kind", kind), zap.Error(err))
		}
		return "", false
	}

	c.logger.Debug("cache hit", zap.String("kind", kind))
	return cached, true
}

// Set stores a response with the configured TTL
func (c *ResponseCache) Set(ctx context.Context, text, kind, response string) {
	if !c.enabled || c.client == nil {
		return
	}

	if err := c.client.SetEx(ctx, c.Key(text, kind), response, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("kind", kind), zap.Error(err))
	}
}
