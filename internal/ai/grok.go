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

// GrokClient implements the xAI Grok API client. Grok sits last in the
// priority ranking and is only selected when no other provider is
// configured for a task. The wire format is OpenAI-compatible.
type GrokClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	*usageTracker
}

type grokRequest struct {
	Model       string        `json:"model"`
	Messages    []grokMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type grokMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type grokResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewGrokClient creates a new xAI Grok API client.
func NewGrokClient(apiKey string) *GrokClient {
	return &GrokClient{
		apiKey:  apiKey,
		baseURL: "https://api.x.ai/v1/chat/completions",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		usageTracker: newUsageTracker(ProviderGrok),
	}
}

// Call implements the ModelClient interface for Grok.
func (g *GrokClient) Call(ctx context.Context, model, prompt, systemInstruction string) (*ModelResponse, error) {
	startTime := time.Now()

	messages := []grokMessage{}
	if systemInstruction != "" {
		messages = append(messages, grokMessage{Role: "system", Content: systemInstruction})
	}
	messages = append(messages, grokMessage{Role: "user", Content: prompt})

	req := &grokRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   8192,
		Temperature: 0.7,
		Stream:      false,
	}

	resp, err := g.makeRequest(ctx, req)
	if err != nil {
		g.recordError()
		return nil, err
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	g.record(resp.Usage.TotalTokens, time.Since(startTime))

	return &ModelResponse{
		Content:    content,
		ModelName:  model,
		Provider:   ProviderGrok,
		TokensUsed: resp.Usage.TotalTokens,
		Duration:   time.Since(startTime),
	}, nil
}

func (g *GrokClient) makeRequest(ctx context.Context, req *grokRequest) (*grokResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
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
			return nil, fmt.Errorf("RATE_LIMIT: Grok API rate limit exceeded")
		case 401:
			return nil, fmt.Errorf("UNAUTHORIZED: invalid Grok API key")
		case 500, 502, 503, 504:
			return nil, fmt.Errorf("SERVICE_ERROR: Grok service temporarily unavailable (status %d)", resp.StatusCode)
		default:
			return nil, fmt.Errorf("API_ERROR: Grok request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	var grokResp grokResponse
	if err := json.Unmarshal(body, &grokResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if grokResp.Error != nil {
		return nil, fmt.Errorf("Grok API error: %s", grokResp.Error.Message)
	}

	return &grokResp, nil
}

// Provider returns the provider identifier.
func (g *GrokClient) Provider() Provider {
	return ProviderGrok
}

// Supports accepts general and speed work when nothing better is around.
func (g *GrokClient) Supports(task TaskType, complexity Complexity) bool {
	switch task {
	case TaskGeneral, TaskSpeed, TaskCoding:
		return true
	}
	return false
}

// DefaultModel picks a Grok model for the task.
func (g *GrokClient) DefaultModel(task TaskType, complexity Complexity) string {
	if task == TaskSpeed || complexity == ComplexityLow {
		return "grok-4-fast"
	}
	return "grok-4"
}
