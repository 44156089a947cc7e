package ai

import (
	"context"
	"errors"
	"time"
)

// Provider identifies a model provider.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderGrok   Provider = "grok"
)

// providerPriority is the static selection ranking. Lower is better.
// This is an intentional simplification: selection is not cost- or
// latency-aware, just a fixed preference order.
var providerPriority = map[Provider]int{
	ProviderClaude: 0,
	ProviderGemini: 1,
	ProviderOpenAI: 2,
	ProviderGrok:   3,
}

// TaskType categorizes what a model call is for.
type TaskType string

const (
	TaskReasoning TaskType = "reasoning"
	TaskSpeed     TaskType = "speed"
	TaskCoding    TaskType = "coding"
	TaskCreative  TaskType = "creative"
	TaskImage     TaskType = "image"
	TaskGeneral   TaskType = "general"
)

// Complexity grades how demanding a task is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// ModelConfig is an immutable provider/model selection for one call.
// A ModelConfig is only ever produced for a provider whose client is
// initialized with a valid credential.
type ModelConfig struct {
	Provider   Provider   `json:"provider"`
	ModelName  string     `json:"model_name"`
	TaskType   TaskType   `json:"task_type"`
	Complexity Complexity `json:"complexity"`
}

// ModelResponse is the normalized result of one gateway call.
type ModelResponse struct {
	Content    string        `json:"content"`
	ModelName  string        `json:"model_name"`
	Provider   Provider      `json:"provider"`
	TokensUsed int           `json:"tokens_used,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ModelClient is implemented once per provider. Provider quirks (wire
// format, auth headers, model naming) stay behind this interface.
type ModelClient interface {
	// Call sends a single prompt and returns the normalized response.
	Call(ctx context.Context, model, prompt, systemInstruction string) (*ModelResponse, error)

	// Provider returns the provider identifier.
	Provider() Provider

	// Supports reports whether this provider specializes in the given
	// task type at the given complexity.
	Supports(task TaskType, complexity Complexity) bool

	// DefaultModel returns the model name used for a task type.
	DefaultModel(task TaskType, complexity Complexity) string

	// Usage returns accumulated usage statistics.
	Usage() *ProviderUsage
}

// ProviderUsage tracks usage statistics for a provider.
type ProviderUsage struct {
	Provider     Provider  `json:"provider"`
	RequestCount int64     `json:"request_count"`
	TotalTokens  int64     `json:"total_tokens"`
	ErrorCount   int64     `json:"error_count"`
	AvgLatency   float64   `json:"avg_latency"`
	LastUsed     time.Time `json:"last_used"`
}

// Errors surfaced by the gateway.
var (
	// ErrNoProvider means no configured provider can serve the task.
	ErrNoProvider = errors.New("no available model provider")

	// ErrAllAttemptsExhausted means every retry of a call failed.
	ErrAllAttemptsExhausted = errors.New("all attempts exhausted")
)
