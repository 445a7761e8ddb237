package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"conversai/backend/pkg/logger"
)

// OpenAIEmbedder implements Embedder using the OpenAI embeddings API (or any
// compatible endpoint behind a proxy). text-embedding-3-small yields
// 1536-dimensional vectors at per-message latencies of ~50-150ms.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
	logger *zap.Logger
}

// NewOpenAIEmbedder creates an embedder. baseURL overrides the API endpoint
// when non-empty (Azure, LiteLLM, local proxies); dims is the expected
// vector length and is validated on every response.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dims int) *OpenAIEmbedder {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL + "/v1"
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(config),
		model:  openai.EmbeddingModel(model),
		dims:   dims,
		logger: logger.Get(),
	}
}

// Embed produces a vector embedding for the given text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}

	vector := resp.Data[0].Embedding
	if len(vector) != e.dims {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vector), e.dims)
	}

	e.logger.Debug("Embedding generated",
		zap.Int("text_len", len(text)),
		zap.Int("dims", len(vector)),
	)

	return vector, nil
}

// Compile-time interface satisfaction check.
var _ Embedder = (*OpenAIEmbedder)(nil)
