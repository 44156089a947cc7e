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

// GeminiClient implements the Google Gemini API client. Gemini is the
// preferred provider for speed, creative, and image tasks.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	*usageTracker
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	TopP            float32 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
			Role string `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: "https://generativelanguage.googleapis.com/v1beta/models",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		usageTracker: newUsageTracker(ProviderGemini),
	}
}

// Call implements the ModelClient interface for Gemini.
func (g *GeminiClient) Call(ctx context.Context, model, prompt, systemInstruction string) (*ModelResponse, error) {
	startTime := time.Now()

	geminiReq := &geminiRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: prompt}},
			},
		},
		GenerationConfig: &geminiGenConfig{
			Temperature:     0.7,
			MaxOutputTokens: 8192,
			TopP:            0.8,
			TopK:            40,
		},
	}
	if systemInstruction != "" {
		geminiReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: systemInstruction}},
		}
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, model, g.apiKey)

	resp, err := g.makeRequest(ctx, url, geminiReq)
	if err != nil {
		g.recordError()
		return nil, err
	}

	content := ""
	if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
		content = resp.Candidates[0].Content.Parts[0].Text
	}

	g.record(resp.UsageMetadata.TotalTokenCount, time.Since(startTime))

	return &ModelResponse{
		Content:    content,
		ModelName:  model,
		Provider:   ProviderGemini,
		TokensUsed: resp.UsageMetadata.TotalTokenCount,
		Duration:   time.Since(startTime),
	}, nil
}

func (g *GeminiClient) makeRequest(ctx context.Context, url string, req *geminiRequest) (*geminiResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
			return nil, fmt.Errorf("RATE_LIMIT: Gemini API rate limit exceeded")
		case 400:
			return nil, fmt.Errorf("BAD_REQUEST: Gemini rejected the request: %s", string(body))
		case 403:
			return nil, fmt.Errorf("FORBIDDEN: invalid Gemini API key or insufficient permissions")
		case 500, 502, 503, 504:
			return nil, fmt.Errorf("SERVICE_ERROR: Gemini service temporarily unavailable (status %d)", resp.StatusCode)
		default:
			return nil, fmt.Errorf("API_ERROR: Gemini request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if geminiResp.Error != nil {
		return nil, fmt.Errorf("Gemini API error: %s", geminiResp.Error.Message)
	}

	return &geminiResp, nil
}

// Provider returns the provider identifier.
func (g *GeminiClient) Provider() Provider {
	return ProviderGemini
}

// Supports reports Gemini's specializations: speed, creative, image.
func (g *GeminiClient) Supports(task TaskType, complexity Complexity) bool {
	switch task {
	case TaskSpeed, TaskCreative, TaskImage:
		return true
	}
	return false
}

// DefaultModel picks a Gemini model for the task.
func (g *GeminiClient) DefaultModel(task TaskType, complexity Complexity) string {
	switch task {
	case TaskImage:
		return "gemini-2.0-flash-exp-image-generation"
	case TaskSpeed:
		return "gemini-2.0-flash"
	default:
		if complexity == ComplexityHigh {
			return "gemini-2.0-pro"
		}
		return "gemini-2.0-flash"
	}
}
