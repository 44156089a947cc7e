package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"appforge/internal/agents"
	"appforge/internal/logging"
)

// ImageClient renders one image from a prompt.
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt, dimensions string) (data []byte, contentType string, err error)
}

// Generator implements the designer's image generation. Without a
// configured client every prompt yields a labeled SVG placeholder,
// without a storage provider results come back as data URLs.
type Generator struct {
	client  ImageClient
	storage StorageProvider
	log     *zap.Logger
}

// NewGenerator creates a generator. Both client and storage may be
// nil.
func NewGenerator(client ImageClient, storage StorageProvider) *Generator {
	return &Generator{client: client, storage: storage, log: logging.L().Named("assets")}
}

// Generate renders all prompts and returns the asset URLs, index
// aligned with the input. A failed render degrades to a placeholder
// instead of failing the batch.
func (g *Generator) Generate(ctx context.Context, prompts []agents.ImagePrompt) ([]string, error) {
	urls := make([]string, 0, len(prompts))
	for _, prompt := range prompts {
		data, contentType := g.render(ctx, prompt)

		if g.storage == nil {
			urls = append(urls, dataURL(data, contentType))
			continue
		}

		key := fmt.Sprintf("%s-%s%s", prompt.UseCase, uuid.New().String()[:8], extensionFor(contentType))
		url, err := g.storage.Put(ctx, key, data, contentType)
		if err != nil {
			g.log.Warn("asset upload failed, falling back to data URL",
				zap.String("use_case", prompt.UseCase), zap.Error(err))
			url = dataURL(data, contentType)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (g *Generator) render(ctx context.Context, prompt agents.ImagePrompt) ([]byte, string) {
	if g.client == nil {
		return placeholderSVG(prompt.UseCase), "image/svg+xml"
	}
	data, contentType, err := g.client.GenerateImage(ctx,
		prompt.Description+", "+prompt.Style, prompt.Dimensions)
	if err != nil {
		g.log.Warn("image generation failed, using placeholder",
			zap.String("use_case", prompt.UseCase), zap.Error(err))
		return placeholderSVG(prompt.UseCase), "image/svg+xml"
	}
	return data, contentType
}

// placeholderSVG is the stand-in asset: a neutral rectangle labeled
// with the use case.
func placeholderSVG(useCase string) []byte {
	if useCase == "" {
		useCase = "asset"
	}
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="512" height="512" viewBox="0 0 512 512">
<rect width="512" height="512" fill="#e2e8f0"/>
<text x="256" y="256" font-family="sans-serif" font-size="32" fill="#475569" text-anchor="middle" dominant-baseline="middle">%s</text>
</svg>`, useCase)
	return []byte(svg)
}

func dataURL(data []byte, contentType string) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	default:
		return ""
	}
}

// GeminiImageClient renders images through the Gemini image model.
type GeminiImageClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGeminiImageClient creates an image client for the given key.
func NewGeminiImageClient(apiKey string) *GeminiImageClient {
	return &GeminiImageClient{
		apiKey:  apiKey,
		baseURL: "https://generativelanguage.googleapis.com/v1beta/models",
		model:   "gemini-2.0-flash-preview-image-generation",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type geminiImagePart struct {
	Text string `json:"text"`
}

type geminiImageContent struct {
	Parts []geminiImagePart `json:"parts"`
}

type geminiImageGenConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type geminiImageRequest struct {
	Contents         []geminiImageContent `json:"contents"`
	GenerationConfig geminiImageGenConfig `json:"generationConfig"`
}

type geminiImageResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *GeminiImageClient) GenerateImage(ctx context.Context, prompt, dimensions string) ([]byte, string, error) {
	req := geminiImageRequest{
		Contents: []geminiImageContent{{
			Parts: []geminiImagePart{{Text: fmt.Sprintf("%s (target size %s)", prompt, dimensions)}},
		}},
		GenerationConfig: geminiImageGenConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed geminiImageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, "", fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, "", fmt.Errorf("image API error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, "", fmt.Errorf("decode image data: %w", err)
				}
				return data, part.InlineData.MimeType, nil
			}
		}
	}
	return nil, "", fmt.Errorf("response contained no image data")
}
