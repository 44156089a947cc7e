// Package cache provides a Redis-backed response cache for the model
// gateway, with an in-memory fallback when Redis is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"appforge/internal/ai"
	"appforge/internal/logging"
)

// ResponseCache stores normalized model responses keyed by prompt hash.
// All operations are best-effort: a cache failure is logged and treated
// as a miss, never surfaced to the pipeline.
type ResponseCache struct {
	client *redis.Client // nil when Redis is not configured

	mem   map[string]memEntry
	memMu sync.RWMutex

	log *zap.Logger
}

type memEntry struct {
	resp      *ai.ModelResponse
	expiresAt time.Time
}

// maxMemEntries bounds the in-memory fallback map.
const maxMemEntries = 500

// New connects to Redis when redisURL is non-empty; otherwise the cache
// runs purely in memory. A failed connection also falls back to memory.
func New(redisURL string) *ResponseCache {
	c := &ResponseCache{
		mem: make(map[string]memEntry),
		log: logging.L().Named("cache"),
	}

	if redisURL == "" {
		return c
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		c.log.Warn("invalid redis URL, using in-memory cache", zap.Error(err))
		return c
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		c.log.Warn("redis unreachable, using in-memory cache", zap.Error(err))
		client.Close()
		return c
	}

	c.client = client
	c.log.Info("redis response cache connected")
	return c
}

// Get implements ai.ResponseCache.
func (c *ResponseCache) Get(ctx context.Context, key string) (*ai.ModelResponse, bool) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, key).Result()
		if err == nil {
			var resp ai.ModelResponse
			if err := json.Unmarshal([]byte(raw), &resp); err == nil {
				return &resp, true
			}
		} else if err != redis.Nil {
			c.log.Warn("redis get failed", zap.Error(err))
		}
		return nil, false
	}

	c.memMu.RLock()
	entry, ok := c.mem[key]
	c.memMu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.resp, true
}

// Set implements ai.ResponseCache.
func (c *ResponseCache) Set(ctx context.Context, key string, resp *ai.ModelResponse, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	if c.client != nil {
		raw, err := json.Marshal(resp)
		if err != nil {
			return
		}
		if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
			c.log.Warn("redis set failed", zap.Error(err))
		}
		return
	}

	c.memMu.Lock()
	defer c.memMu.Unlock()

	if len(c.mem) >= maxMemEntries {
		// Drop expired entries first; if nothing expired, drop the
		// oldest-expiring entry to stay bounded.
		now := time.Now()
		var oldestKey string
		var oldestExpiry time.Time
		for k, e := range c.mem {
			if now.After(e.expiresAt) {
				delete(c.mem, k)
				continue
			}
			if oldestKey == "" || e.expiresAt.Before(oldestExpiry) {
				oldestKey, oldestExpiry = k, e.expiresAt
			}
		}
		if len(c.mem) >= maxMemEntries && oldestKey != "" {
			delete(c.mem, oldestKey)
		}
	}

	c.mem[key] = memEntry{resp: resp, expiresAt: time.Now().Add(ttl)}
}

// Close releases the Redis connection if one exists.
func (c *ResponseCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
