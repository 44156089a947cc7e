package ai

import (
	"sync"
	"time"
)

// usageTracker accumulates per-provider usage statistics. Every client
// embeds one; all methods are safe for concurrent use.
type usageTracker struct {
	mu    sync.RWMutex
	usage ProviderUsage
}

func newUsageTracker(p Provider) *usageTracker {
	return &usageTracker{usage: ProviderUsage{Provider: p, LastUsed: time.Now()}}
}

func (t *usageTracker) record(tokens int, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.usage.RequestCount++
	t.usage.TotalTokens += int64(tokens)
	t.usage.AvgLatency = (t.usage.AvgLatency*float64(t.usage.RequestCount-1) + duration.Seconds()) / float64(t.usage.RequestCount)
	t.usage.LastUsed = time.Now()
}

func (t *usageTracker) recordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.ErrorCount++
}

// Usage returns a copy to prevent data races.
func (t *usageTracker) Usage() *ProviderUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u := t.usage
	return &u
}
