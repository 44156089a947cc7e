package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	cacheTTL        = 5 * time.Minute
	maxCacheEntries = 50
)

// HashFiles produces the cache key for a file map: a rolling hash over
// "path:content" pairs in sorted path order, so key order of the input
// map never changes the result. Not collision-resistant, which is
// acceptable for a dev-tool result cache.
func HashFiles(files map[string]string) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var h uint64
	for _, p := range paths {
		for _, chunk := range []string{p, ":", files[p], "\x00"} {
			for i := 0; i < len(chunk); i++ {
				h = h*31 + uint64(chunk[i])
			}
		}
	}
	return fmt.Sprintf("%016x", h)
}

type cacheEntry struct {
	result   *BuildResult
	storedAt time.Time
}

// resultCache holds recent build results keyed by content hash. TTL
// 5 minutes, bounded to 50 entries with oldest-first eviction.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newResultCache() *resultCache {
	return &resultCache{entries: make(map[string]cacheEntry), now: time.Now}
}

func (c *resultCache) get(key string) (*BuildResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > cacheTTL {
		delete(c.entries, key)
		return nil, false
	}
	return entry.result, true
}

func (c *resultCache) put(key string, result *BuildResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= maxCacheEntries {
		oldestKey := ""
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.storedAt.Before(oldest) {
				oldestKey, oldest = k, e.storedAt
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = cacheEntry{result: result, storedAt: c.now()}
}
