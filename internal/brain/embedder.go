package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"appforge/internal/logging"
	"appforge/pkg/models"
)

// EmbeddingSource tags where an embedding came from so similarity
// search quality stays auditable.
type EmbeddingSource string

const (
	SourceOpenAI      EmbeddingSource = "openai"
	SourceGemini      EmbeddingSource = "gemini"
	SourcePlaceholder EmbeddingSource = "placeholder"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, EmbeddingSource, error)
}

// ChainEmbedder tries a primary provider, then a secondary, and finally
// derives a deterministic placeholder vector from a string hash. The
// placeholder guarantees availability over correctness; callers must
// persist the returned source so placeholder vectors can be told apart
// from real ones.
type ChainEmbedder struct {
	openAIKey  string
	geminiKey  string
	httpClient *http.Client
	log        *zap.Logger
}

// NewChainEmbedder builds the fallback chain. Either key may be empty,
// which skips that provider.
func NewChainEmbedder(openAIKey, geminiKey string) *ChainEmbedder {
	return &ChainEmbedder{
		openAIKey: openAIKey,
		geminiKey: geminiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logging.L().Named("embedder"),
	}
}

// Embed implements Embedder. It never returns an error: the placeholder
// path always succeeds.
func (e *ChainEmbedder) Embed(ctx context.Context, text string) ([]float32, EmbeddingSource, error) {
	if e.openAIKey != "" {
		vec, err := e.embedOpenAI(ctx, text)
		if err == nil {
			return vec, SourceOpenAI, nil
		}
		e.log.Warn("openai embedding failed, trying gemini", zap.Error(err))
	}

	if e.geminiKey != "" {
		vec, err := e.embedGemini(ctx, text)
		if err == nil {
			return vec, SourceGemini, nil
		}
		e.log.Warn("gemini embedding failed, using placeholder", zap.Error(err))
	}

	return placeholderEmbedding(text), SourcePlaceholder, nil
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *ChainEmbedder) embedOpenAI(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(&openAIEmbeddingRequest{
		Model: "text-embedding-3-small",
		Input: text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/embeddings", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.openAIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai embeddings returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai embeddings error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embeddings returned no vector")
	}

	return resize(parsed.Data[0].Embedding, models.EmbeddingDim), nil
}

type geminiEmbeddingRequest struct {
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
}

type geminiEmbeddingResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *ChainEmbedder) embedGemini(ctx context.Context, text string) ([]float32, error) {
	var reqBody geminiEmbeddingRequest
	reqBody.Content.Parts = []struct {
		Text string `json:"text"`
	}{{Text: text}}

	body, err := json.Marshal(&reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1beta/models/text-embedding-004:embedContent?key=%s",
		e.geminiKey,
	)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini embeddings returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed geminiEmbeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gemini embeddings error: %s", parsed.Error.Message)
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embeddings returned no vector")
	}

	return resize(parsed.Embedding.Values, models.EmbeddingDim), nil
}

// placeholderEmbedding derives a deterministic vector from a string
// hash projected through a sinusoidal expansion. Vectors for equal
// inputs are equal; vectors for different inputs diverge enough for the
// store to function, but they carry no semantic meaning.
func placeholderEmbedding(text string) []float32 {
	var hash uint64 = 14695981039346656037 // FNV-1a offset basis
	for i := 0; i < len(text); i++ {
		hash ^= uint64(text[i])
		hash *= 1099511628211
	}

	vec := make([]float32, models.EmbeddingDim)
	for i := range vec {
		vec[i] = float32(math.Sin(float64(hash%100000)/1000.0 + float64(i)*0.1))
	}
	return normalize(vec)
}

// resize pads or truncates a vector to the target dimensionality so a
// provider dimension change never corrupts the stored format.
func resize(vec []float32, dim int) []float32 {
	if len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// CosineSimilarity computes the cosine similarity of two vectors,
// returning 0 for mismatched or zero-length inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
