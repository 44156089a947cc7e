package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is a scriptable ModelClient for gateway tests.
type fakeClient struct {
	provider Provider
	supports func(TaskType, Complexity) bool
	calls    int
	failures int // fail this many calls before succeeding
	err      error
	tracker  *usageTracker
}

func newFakeClient(p Provider, supports func(TaskType, Complexity) bool) *fakeClient {
	return &fakeClient{provider: p, supports: supports, tracker: newUsageTracker(p)}
}

func (f *fakeClient) Call(ctx context.Context, model, prompt, system string) (*ModelResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, errors.New("simulated provider failure")
	}
	return &ModelResponse{Content: "ok:" + prompt, ModelName: model, Provider: f.provider}, nil
}

func (f *fakeClient) Provider() Provider { return f.provider }

func (f *fakeClient) Supports(task TaskType, complexity Complexity) bool {
	if f.supports == nil {
		return true
	}
	return f.supports(task, complexity)
}

func (f *fakeClient) DefaultModel(task TaskType, complexity Complexity) string {
	return "fake-model"
}

func (f *fakeClient) Usage() *ProviderUsage { return f.tracker.Usage() }

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func claudeLike(task TaskType, c Complexity) bool {
	return c == ComplexityHigh || task == TaskReasoning || task == TaskCoding
}

func geminiLike(task TaskType, c Complexity) bool {
	return task == TaskSpeed || task == TaskCreative || task == TaskImage
}

func TestSelectModelStaticPriority(t *testing.T) {
	t.Parallel()

	claude := newFakeClient(ProviderClaude, claudeLike)
	gemini := newFakeClient(ProviderGemini, geminiLike)
	openai := newFakeClient(ProviderOpenAI, nil) // universal

	g := NewGateway([]ModelClient{openai, gemini, claude})

	// Claude wins for reasoning even though OpenAI also supports it.
	cfg := g.SelectModel(TaskReasoning, ComplexityMedium)
	require.NotNil(t, cfg)
	assert.Equal(t, ProviderClaude, cfg.Provider)

	// Gemini wins for speed: Claude does not specialize in it.
	cfg = g.SelectModel(TaskSpeed, ComplexityLow)
	require.NotNil(t, cfg)
	assert.Equal(t, ProviderGemini, cfg.Provider)

	// General work falls through to the universal fallback.
	cfg = g.SelectModel(TaskGeneral, ComplexityMedium)
	require.NotNil(t, cfg)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)

	// High complexity pulls Claude in regardless of task type.
	cfg = g.SelectModel(TaskGeneral, ComplexityHigh)
	require.NotNil(t, cfg)
	assert.Equal(t, ProviderClaude, cfg.Provider)
}

func TestSelectModelNoProviders(t *testing.T) {
	t.Parallel()

	g := NewGateway(nil)
	assert.False(t, g.HasProviders())
	assert.Nil(t, g.SelectModel(TaskReasoning, ComplexityHigh))
}

func TestCallRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	client := newFakeClient(ProviderOpenAI, nil)
	client.failures = 2

	g := NewGateway([]ModelClient{client})
	g.sleep = noSleep

	cfg := g.SelectModel(TaskGeneral, ComplexityLow)
	require.NotNil(t, cfg)

	resp, err := g.Call(context.Background(), cfg, "hello", "", 3)
	require.NoError(t, err)
	assert.Equal(t, "ok:hello", resp.Content)
	assert.Equal(t, 3, client.calls)
}

func TestCallExhaustsRetries(t *testing.T) {
	t.Parallel()

	client := newFakeClient(ProviderOpenAI, nil)
	client.failures = 10
	client.err = errors.New("SERVICE_ERROR: down")

	g := NewGateway([]ModelClient{client})
	g.sleep = noSleep

	cfg := g.SelectModel(TaskGeneral, ComplexityLow)
	_, err := g.Call(context.Background(), cfg, "hello", "", 3)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllAttemptsExhausted)
	assert.Contains(t, err.Error(), "SERVICE_ERROR")
	assert.Equal(t, 3, client.calls)
}

func TestCallUnknownProvider(t *testing.T) {
	t.Parallel()

	g := NewGateway(nil)
	_, err := g.Call(context.Background(), &ModelConfig{Provider: ProviderGrok, ModelName: "grok-4"}, "p", "", 1)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestCallNilConfig(t *testing.T) {
	t.Parallel()

	g := NewGateway(nil)
	_, err := g.Call(context.Background(), nil, "p", "", 1)
	assert.ErrorIs(t, err, ErrNoProvider)
}

// memCache is a minimal ResponseCache for testing cache short-circuits.
type memCache struct {
	store map[string]*ModelResponse
	sets  int
}

func (m *memCache) Get(ctx context.Context, key string) (*ModelResponse, bool) {
	r, ok := m.store[key]
	return r, ok
}

func (m *memCache) Set(ctx context.Context, key string, resp *ModelResponse, ttl time.Duration) {
	m.sets++
	m.store[key] = resp
}

func TestCallUsesResponseCache(t *testing.T) {
	t.Parallel()

	client := newFakeClient(ProviderOpenAI, nil)
	cache := &memCache{store: map[string]*ModelResponse{}}

	g := NewGateway([]ModelClient{client}, WithResponseCache(cache, time.Minute))
	g.sleep = noSleep

	cfg := g.SelectModel(TaskGeneral, ComplexityLow)

	_, err := g.Call(context.Background(), cfg, "same prompt", "", 3)
	require.NoError(t, err)
	_, err = g.Call(context.Background(), cfg, "same prompt", "", 3)
	require.NoError(t, err)

	assert.Equal(t, 1, client.calls, "second call should be served from cache")
	assert.Equal(t, 1, cache.sets)
}
