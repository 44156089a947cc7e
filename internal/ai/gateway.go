// Package ai implements the model gateway: provider selection, retried
// calls with exponential backoff, and structured-output extraction from
// free-form model text.
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"appforge/internal/logging"
	"appforge/internal/metrics"
)

// DefaultMaxRetries bounds the retry loop of a single gateway call.
const DefaultMaxRetries = 3

// ResponseCache caches normalized model responses across calls. The
// Redis-backed implementation lives in internal/cache; a nil cache
// disables caching entirely.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*ModelResponse, bool)
	Set(ctx context.Context, key string, resp *ModelResponse, ttl time.Duration)
}

// Gateway selects a provider per (task type, complexity) pair and
// executes calls with bounded retry. Providers are registered once at
// construction; a provider without a credential is simply absent.
type Gateway struct {
	clients  map[Provider]ModelClient
	limiters map[Provider]*rate.Limiter
	cache    ResponseCache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	log      *zap.Logger

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithResponseCache attaches a response cache with the given TTL.
func WithResponseCache(cache ResponseCache, ttl time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.cache = cache
		g.cacheTTL = ttl
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// WithRateLimit overrides the per-provider request rate (requests per
// minute). Zero leaves the provider unlimited.
func WithRateLimit(p Provider, perMinute int) GatewayOption {
	return func(g *Gateway) {
		if perMinute > 0 {
			g.limiters[p] = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		}
	}
}

// NewGateway creates a gateway over the given clients. Nil clients are
// skipped so callers can pass the result of conditional construction.
func NewGateway(clients []ModelClient, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		clients:  make(map[Provider]ModelClient),
		limiters: make(map[Provider]*rate.Limiter),
		metrics:  metrics.NewNop(),
		log:      logging.L().Named("gateway"),
		sleep:    sleepCtx,
	}

	for _, c := range clients {
		if c != nil {
			g.clients[c.Provider()] = c
		}
	}

	// Conservative defaults mirroring each provider's published limits.
	defaults := map[Provider]int{
		ProviderClaude: 100,
		ProviderGemini: 120,
		ProviderOpenAI: 80,
		ProviderGrok:   100,
	}
	for p, perMinute := range defaults {
		g.limiters[p] = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// NewGatewayFromKeys builds clients for every non-empty credential.
func NewGatewayFromKeys(anthropicKey, geminiKey, openAIKey, grokKey string, opts ...GatewayOption) *Gateway {
	var clients []ModelClient
	if anthropicKey != "" {
		clients = append(clients, NewClaudeClient(anthropicKey))
	}
	if geminiKey != "" {
		clients = append(clients, NewGeminiClient(geminiKey))
	}
	if openAIKey != "" {
		clients = append(clients, NewOpenAIClient(openAIKey))
	}
	if grokKey != "" {
		clients = append(clients, NewGrokClient(grokKey))
	}
	return NewGateway(clients, opts...)
}

// HasProviders reports whether any provider is configured.
func (g *Gateway) HasProviders() bool {
	return len(g.clients) > 0
}

// SelectModel returns the model configuration for a task, or nil when
// no configured provider can serve it. Selection is a static priority
// ranking over provider specializations, not a cost- or latency-aware
// scheduler.
func (g *Gateway) SelectModel(task TaskType, complexity Complexity) *ModelConfig {
	var candidates []ModelClient
	for _, client := range g.clients {
		if client.Supports(task, complexity) {
			candidates = append(candidates, client)
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return providerPriority[candidates[i].Provider()] < providerPriority[candidates[j].Provider()]
	})

	chosen := candidates[0]
	return &ModelConfig{
		Provider:   chosen.Provider(),
		ModelName:  chosen.DefaultModel(task, complexity),
		TaskType:   task,
		Complexity: complexity,
	}
}

// Call executes a model call with bounded retry and exponential
// backoff (2^attempt seconds, no jitter). Every failure is retried
// identically up to the bound; the gateway makes no retryable versus
// non-retryable distinction.
func (g *Gateway) Call(ctx context.Context, cfg *ModelConfig, prompt, systemInstruction string, maxRetries int) (*ModelResponse, error) {
	if cfg == nil {
		return nil, ErrNoProvider
	}
	client, ok := g.clients[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s not configured", ErrNoProvider, cfg.Provider)
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	cacheKey := responseCacheKey(cfg, prompt, systemInstruction)
	if g.cache != nil {
		if resp, hit := g.cache.Get(ctx, cacheKey); hit {
			return resp, nil
		}
	}

	if limiter, ok := g.limiters[cfg.Provider]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		start := time.Now()
		resp, err := client.Call(ctx, cfg.ModelName, prompt, systemInstruction)
		if err == nil {
			g.metrics.ModelCallsTotal.WithLabelValues(string(cfg.Provider), "success").Inc()
			g.metrics.ModelCallDuration.WithLabelValues(string(cfg.Provider)).Observe(time.Since(start).Seconds())
			g.metrics.ModelTokensUsed.WithLabelValues(string(cfg.Provider)).Add(float64(resp.TokensUsed))

			if g.cache != nil {
				g.cache.Set(ctx, cacheKey, resp, g.cacheTTL)
			}
			return resp, nil
		}

		lastErr = err
		g.metrics.ModelCallsTotal.WithLabelValues(string(cfg.Provider), "error").Inc()
		g.log.Warn("model call failed",
			zap.String("provider", string(cfg.Provider)),
			zap.String("model", cfg.ModelName),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < maxRetries-1 {
			g.metrics.ModelCallRetries.WithLabelValues(string(cfg.Provider)).Inc()
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if err := g.sleep(ctx, backoff); err != nil {
				return nil, fmt.Errorf("backoff interrupted: %w", err)
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrAllAttemptsExhausted, maxRetries, lastErr)
}

// Usage returns the per-provider usage statistics.
func (g *Gateway) Usage() map[Provider]*ProviderUsage {
	usage := make(map[Provider]*ProviderUsage, len(g.clients))
	for p, client := range g.clients {
		usage[p] = client.Usage()
	}
	return usage
}

func responseCacheKey(cfg *ModelConfig, prompt, systemInstruction string) string {
	payload, _ := json.Marshal([]string{string(cfg.Provider), cfg.ModelName, systemInstruction, prompt})
	sum := sha256.Sum256(payload)
	return "ai:resp:" + hex.EncodeToString(sum[:])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
