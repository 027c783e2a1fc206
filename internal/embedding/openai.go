package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenAIEmbedder generates embeddings via an OpenAI-compatible embeddings
// endpoint.
type OpenAIEmbedder struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewOpenAI creates a new OpenAI-compatible embedder.
func NewOpenAI(apiKey, baseURL, model string, dimensions int) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}

	return &OpenAIEmbedder{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// EmbedOne generates an embedding for a single text input.
func (o *OpenAIEmbedder) EmbedOne(ctx context.Context, text string) (Vector, error) {
	vectors, err := o.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if vectors[0] == nil {
		return nil, fmt.Errorf("embedding provider returned no vector for text")
	}
	return vectors[0], nil
}

// EmbedMany calls the embeddings endpoint once for the whole batch. A
// non-200 response or malformed body fails the batch outright (the
// provider gave no per-item signal to salvage); a context cancellation
// also aborts. Per-item entries missing from the response body come back
// as nil, which is the only source of partial failure this adapter can
// produce since the API call itself is all-or-nothing.
func (o *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(openAIEmbedRequest{
		Model:      o.model,
		Input:      texts,
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("embedding provider error: %s", msg)
	}

	vectors := make([]Vector, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		vectors[d.Index] = Vector(d.Embedding)
	}
	return vectors, nil
}

// Dimensions returns the vector dimensionality.
func (o *OpenAIEmbedder) Dimensions() int {
	return o.dimensions
}

// Model returns the model identifier.
func (o *OpenAIEmbedder) Model() string {
	return fmt.Sprintf("openai/%s", o.model)
}

// OpenAIProvider implements Provider for the OpenAI embedder.
type OpenAIProvider struct{}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Create instantiates an OpenAI embedder with the given configuration.
func (p *OpenAIProvider) Create(config map[string]any) (Embedder, error) {
	apiKey, ok := config["api_key"].(string)
	if !ok || apiKey == "" {
		return nil, fmt.Errorf("api_key is required for openai provider")
	}

	baseURL, _ := config["base_url"].(string)
	model, _ := config["model"].(string)

	dimensions := DefaultDimensions
	if dim, ok := config["dimensions"].(int); ok {
		dimensions = dim
	} else if dim, ok := config["dimensions"].(float64); ok {
		dimensions = int(dim)
	}

	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}

	return NewOpenAI(apiKey, baseURL, model, dimensions), nil
}
