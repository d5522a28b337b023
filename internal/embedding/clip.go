package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// ClipProvider implements Provider against a CLIP inference sidecar that
// exposes /encode/text and /encode/image and returns vectors already
// normalized to unit length.
type ClipProvider struct {
	endpoint  string
	model     string
	apiKey    string
	dimension int

	// observedDim caches the dimension of the first returned vector.
	// Dimension may race the first encode, so access is atomic.
	observedDim atomic.Int64
}

// NewClipProvider creates a new ClipProvider from the given Config.
func NewClipProvider(cfg Config) *ClipProvider {
	return &ClipProvider{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		dimension: cfg.Dimension,
	}
}

type textRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type imageRequest struct {
	Model string `json:"model"`
	// Image is the raw image bytes, base64-encoded.
	Image string `json:"image"`
}

type encodeResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EncodeText sends text to the sidecar and returns its embedding.
func (p *ClipProvider) EncodeText(ctx context.Context, text string) ([]float32, error) {
	return p.encode(ctx, "/encode/text", textRequest{Model: p.model, Text: text})
}

// EncodeImage sends raw image bytes to the sidecar and returns their embedding.
func (p *ClipProvider) EncodeImage(ctx context.Context, data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("embedding: empty image: %w", ErrEncoding)
	}
	return p.encode(ctx, "/encode/image", imageRequest{
		Model: p.model,
		Image: base64.StdEncoding.EncodeToString(data),
	})
}

func (p *ClipProvider) encode(ctx context.Context, path string, payload any) ([]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding: %s returned status %d: %s: %w",
			path, resp.StatusCode, string(respBody), ErrEncoding)
	}

	var result encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("embedding: empty vector from %s: %w", path, ErrEncoding)
	}

	// Cache dimension from first successful result.
	p.observedDim.CompareAndSwap(0, int64(len(result.Embedding)))

	return result.Embedding, nil
}

// Model returns the provider's model identifier.
func (p *ClipProvider) Model() string {
	return p.model
}

// Dimension returns the embedding vector dimension.
// It returns the cached dimension from the first result, or the configured default.
func (p *ClipProvider) Dimension() int {
	if d := p.observedDim.Load(); d > 0 {
		return int(d)
	}
	return p.dimension
}
