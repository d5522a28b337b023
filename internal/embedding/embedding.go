package embedding

import (
	"context"
	"errors"
)

// ErrEncoding marks provider failures to produce a vector from the
// given input. Such failures are local to one text or one image and
// must not abort sibling work.
var ErrEncoding = errors.New("encoding failed")

// Provider generates unit-normalized vector embeddings for text and
// image content. Both modalities share one vector space, so a text
// vector and an image vector of the same dimension are comparable.
type Provider interface {
	EncodeText(ctx context.Context, text string) ([]float32, error)
	EncodeImage(ctx context.Context, data []byte) ([]float32, error)
	Model() string
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}
