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

// OpenAIClient implements the OpenAI chat completions client. OpenAI is
// the universal fallback: it accepts every task type at every complexity
// so the pipeline keeps running when the specialists are not configured.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	*usageTracker
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
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

// NewOpenAIClient creates a new OpenAI API client.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1/chat/completions",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		usageTracker: newUsageTracker(ProviderOpenAI),
	}
}

// Call implements the ModelClient interface for OpenAI.
func (o *OpenAIClient) Call(ctx context.Context, model, prompt, systemInstruction string) (*ModelResponse, error) {
	startTime := time.Now()

	messages := []openAIMessage{}
	if systemInstruction != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: systemInstruction})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt})

	req := &openAIRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   8192,
		Temperature: 0.7,
		Stream:      false,
	}

	resp, err := o.makeRequest(ctx, req)
	if err != nil {
		o.recordError()
		return nil, err
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	o.record(resp.Usage.TotalTokens, time.Since(startTime))

	return &ModelResponse{
		Content:    content,
		ModelName:  model,
		Provider:   ProviderOpenAI,
		TokensUsed: resp.Usage.TotalTokens,
		Duration:   time.Since(startTime),
	}, nil
}

func (o *OpenAIClient) makeRequest(ctx context.Context, req *openAIRequest) (*openAIResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
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
			return nil, fmt.Errorf("RATE_LIMIT: OpenAI API rate limit exceeded")
		case 401:
			return nil, fmt.Errorf("UNAUTHORIZED: invalid OpenAI API key")
		case 402:
			return nil, fmt.Errorf("QUOTA_EXCEEDED: OpenAI API quota exhausted")
		case 500, 502, 503, 504:
			return nil, fmt.Errorf("SERVICE_ERROR: OpenAI service temporarily unavailable (status %d)", resp.StatusCode)
		default:
			return nil, fmt.Errorf("API_ERROR: OpenAI request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if openAIResp.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}

	return &openAIResp, nil
}

// Provider returns the provider identifier.
func (o *OpenAIClient) Provider() Provider {
	return ProviderOpenAI
}

// Supports always returns true: OpenAI is the universal fallback.
func (o *OpenAIClient) Supports(task TaskType, complexity Complexity) bool {
	return true
}

// DefaultModel picks an OpenAI model for the task.
func (o *OpenAIClient) DefaultModel(task TaskType, complexity Complexity) string {
	if complexity == ComplexityHigh || task == TaskReasoning {
		return "gpt-4o"
	}
	return "gpt-4o-mini"
}
