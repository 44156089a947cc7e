package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClaudeClient implements the Anthropic Messages API client. Claude is
// the preferred provider for reasoning, coding, and any high-complexity
// task.
type ClaudeClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	*usageTracker
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []claudeMessage `json:"messages"`
	Temperature float32         `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClaudeClient creates a new Claude API client.
func NewClaudeClient(apiKey string) *ClaudeClient {
	return &ClaudeClient{
		apiKey:  apiKey,
		baseURL: "https://api.anthropic.com/v1/messages",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		usageTracker: newUsageTracker(ProviderClaude),
	}
}

// Call implements the ModelClient interface for Claude.
func (c *ClaudeClient) Call(ctx context.Context, model, prompt, systemInstruction string) (*ModelResponse, error) {
	startTime := time.Now()

	req := &claudeRequest{
		Model:     model,
		MaxTokens: 8192,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		System:      systemInstruction,
	}

	resp, err := c.makeRequest(ctx, req)
	if err != nil {
		c.recordError()
		return nil, err
	}

	content := ""
	if len(resp.Content) > 0 && resp.Content[0].Type == "text" {
		content = resp.Content[0].Text
	}

	totalTokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	c.record(totalTokens, time.Since(startTime))

	return &ModelResponse{
		Content:    content,
		ModelName:  model,
		Provider:   ProviderClaude,
		TokensUsed: totalTokens,
		Duration:   time.Since(startTime),
	}, nil
}

func (c *ClaudeClient) makeRequest(ctx context.Context, req *claudeRequest) (*claudeResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case 429:
			return nil, fmt.Errorf("RATE_LIMIT: Claude API rate limit exceeded")
		case 401:
			return nil, fmt.Errorf("UNAUTHORIZED: invalid Claude API key")
		case 402:
			return nil, fmt.Errorf("QUOTA_EXCEEDED: Claude API quota exhausted")
		case 500, 502, 503, 504, 529:
			return nil, fmt.Errorf("SERVICE_ERROR: Claude service temporarily unavailable (status %d)", resp.StatusCode)
		default:
			return nil, fmt.Errorf("API_ERROR: Claude request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if claudeResp.Error != nil {
		return nil, fmt.Errorf("Claude API error: %s", claudeResp.Error.Message)
	}

	return &claudeResp, nil
}

// Provider returns the provider identifier.
func (c *ClaudeClient) Provider() Provider {
	return ProviderClaude
}

// Supports reports Claude's specializations: reasoning, coding, and
// anything graded high complexity.
func (c *ClaudeClient) Supports(task TaskType, complexity Complexity) bool {
	if complexity == ComplexityHigh {
		return true
	}
	switch task {
	case TaskReasoning, TaskCoding:
		return true
	}
	return false
}

// DefaultModel picks a Claude model for the task.
func (c *ClaudeClient) DefaultModel(task TaskType, complexity Complexity) string {
	if complexity == ComplexityHigh || task == TaskReasoning {
		return "claude-opus-4-5-20251101"
	}
	if complexity == ComplexityLow {
		return "claude-haiku-4-5-20251001"
	}
	return "claude-sonnet-4-5-20250929"
}
