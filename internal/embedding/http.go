package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kontext/pkg/utils"
)

const (
	// DefaultURL is the local Ollama endpoint.
	DefaultURL = "http://localhost:11434"
	// DefaultModel is the embedding model requested when none is configured.
	DefaultModel = "nomic-embed-text"

	embeddingsPath = "/api/embeddings"
	defaultTimeout = 30 * time.Second
)

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// HTTPEmbedder calls an Ollama-compatible embeddings endpoint.
type HTTPEmbedder struct {
	client     *resty.Client
	model      string
	dimensions int
	logger     *zap.Logger
}

// Option configures an HTTPEmbedder.
type Option func(*HTTPEmbedder)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *HTTPEmbedder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewHTTPEmbedder returns an embedder for the server at baseURL. Returned vectors are
// L2-normalized and must have exactly dimensions entries.
func NewHTTPEmbedder(baseURL, model string, dimensions int, timeout time.Duration, opts ...Option) *HTTPEmbedder {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	e := &HTTPEmbedder{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		model:      model,
		dimensions: dimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed requests one embedding.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out embeddingResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(embeddingRequest{Model: e.model, Prompt: text}).
		SetResult(&out).
		Post(embeddingsPath)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("embedding request: status %d", resp.StatusCode())
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedding request: empty embedding")
	}
	if e.dimensions > 0 && len(out.Embedding) != e.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(out.Embedding), e.dimensions)
	}
	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch embeds texts one request at a time.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	e.logger.Debug("embedded batch", zap.Int("count", len(texts)), zap.String("model", e.model))
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HTTPEmbedder) Close() error {
	return nil
}
