package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLs per cached kind.
const (
	sessionTTL      = time.Hour
	jobTTL          = time.Hour
	metadataTTL     = 24 * time.Hour
	scoreTTL        = 24 * time.Hour
	searchResultTTL = 5 * time.Minute
	intentTTL       = time.Hour
)

// Cache is a best-effort facade over Redis. It is never authoritative:
// every error is swallowed after a warning log, reads simply miss, and
// a nil client turns every operation into a no-op.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New connects to Redis from a URL. An empty URL or a parse failure
// yields a disabled cache rather than an error.
func New(redisURL string, logger *slog.Logger) *Cache {
	c := &Cache{logger: logger}
	if redisURL == "" {
		return c
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("cache disabled: bad redis url", "error", err)
		return c
	}
	c.rdb = redis.NewClient(opt)
	return c
}

// Enabled reports whether a Redis client is configured.
func (c *Cache) Enabled() bool { return c != nil && c.rdb != nil }

// Ping checks Redis connectivity for health reporting.
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return fmt.Errorf("cache disabled")
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() {
	if c.Enabled() {
		_ = c.rdb.Close()
	}
}

func key(kind, domain, id string) string {
	return fmt.Sprintf("hakken:%s:%s:%s", kind, domain, id)
}

func (c *Cache) set(ctx context.Context, k string, v any, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, k, payload, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", "key", k, "error", err)
	}
}

// get returns true only when the key was present and decoded cleanly.
func (c *Cache) get(ctx context.Context, k string, dest any) bool {
	if !c.Enabled() {
		return false
	}
	payload, err := c.rdb.Get(ctx, k).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", "key", k, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		c.logger.Warn("cache decode failed", "key", k, "error", err)
		return false
	}
	return true
}

func (c *Cache) SetSession(ctx context.Context, domain, id string, v any) {
	c.set(ctx, key("session", domain, id), v, sessionTTL)
}

func (c *Cache) GetSession(ctx context.Context, domain, id string, dest any) bool {
	return c.get(ctx, key("session", domain, id), dest)
}

func (c *Cache) SetJob(ctx context.Context, domain, id string, v any) {
	c.set(ctx, key("job", domain, id), v, jobTTL)
}

func (c *Cache) GetJob(ctx context.Context, domain, id string, dest any) bool {
	return c.get(ctx, key("job", domain, id), dest)
}

func (c *Cache) SetMetadata(ctx context.Context, domain, url string, v any) {
	c.set(ctx, key("metadata", domain, url), v, metadataTTL)
}

func (c *Cache) GetMetadata(ctx context.Context, domain, url string, dest any) bool {
	return c.get(ctx, key("metadata", domain, url), dest)
}

func (c *Cache) SetScore(ctx context.Context, domain, url string, v any) {
	c.set(ctx, key("score", domain, url), v, scoreTTL)
}

func (c *Cache) GetScore(ctx context.Context, domain, url string, dest any) bool {
	return c.get(ctx, key("score", domain, url), dest)
}

func (c *Cache) SetSearchResult(ctx context.Context, domain, query string, v any) {
	c.set(ctx, key("search", domain, query), v, searchResultTTL)
}

func (c *Cache) GetSearchResult(ctx context.Context, domain, query string, dest any) bool {
	return c.get(ctx, key("search", domain, query), dest)
}

func (c *Cache) SetIntent(ctx context.Context, domain, url string, v any) {
	c.set(ctx, key("intent", domain, url), v, intentTTL)
}

func (c *Cache) GetIntent(ctx context.Context, domain, url string, dest any) bool {
	return c.get(ctx, key("intent", domain, url), dest)
}

// InvalidateDomain deletes every cached entry for a domain by pattern
// scan. Best-effort like everything else here.
func (c *Cache) InvalidateDomain(ctx context.Context, domain string) {
	if !c.Enabled() {
		return
	}
	pattern := fmt.Sprintf("*:%s:*", domain)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			c.deleteKeys(ctx, keys)
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache scan failed", "domain", domain, "error", err)
	}
	if len(keys) > 0 {
		c.deleteKeys(ctx, keys)
	}
}

func (c *Cache) deleteKeys(ctx context.Context, keys []string) {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache delete failed", "keys", len(keys), "error", err)
	}
}
