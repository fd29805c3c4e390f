// Package cache is a content-addressed cache for generative results.
// Identical prompt+tag pairs always hit the same entry; any byte difference
// is a miss. Fuzzy matching belongs to the vector memory layer, not here.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "cogni:gen:"

// SemanticCache stores serialized generation results in Redis under a hash
// of their exact prompt and context tag. Caching is an optimization, never
// a correctness dependency: every backend failure degrades to a miss.
type SemanticCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to Redis and returns a ready cache. A connection failure is
// returned so the caller can log it, but a nil-client cache built via
// NewDisabled still satisfies all calls.
func New(redisURL string, ttl time.Duration, logger *zap.Logger) (*SemanticCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &SemanticCache{rdb: rdb, ttl: ttl, logger: logger}, nil
}

// NewDisabled returns a cache that always misses. Used when Redis is
// unavailable at startup.
func NewDisabled(logger *zap.Logger) *SemanticCache {
	return &SemanticCache{logger: logger}
}

// Key derives the deterministic cache key for a prompt and context tag.
func Key(prompt, contextTag string) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(contextTag))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for prompt+tag, or ok=false on miss. Backend
// errors are logged and read as misses.
func (c *SemanticCache) Get(ctx context.Context, prompt, contextTag string) (string, bool) {
	if c.rdb == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, Key(prompt, contextTag)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("cache get failed, treating as miss",
			zap.String("tag", contextTag), zap.Error(err))
		return "", false
	}
	return val, true
}

// Put stores a value under prompt+tag with the given TTL (zero uses the
// configured default). Best-effort: failures are logged and swallowed.
func (c *SemanticCache) Put(ctx context.Context, prompt, contextTag, value string, ttl time.Duration) {
	if c.rdb == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.rdb.Set(ctx, Key(prompt, contextTag), value, ttl).Err(); err != nil {
		c.logger.Warn("cache put failed",
			zap.String("tag", contextTag), zap.Error(err))
	}
}

// Close shuts down the Redis connection.
func (c *SemanticCache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
