package embedding

import "context"

// Embedder produces fixed-length vector embeddings for text. The dimension
// must be stable across calls; retrieval compares query vectors against
// stored category vectors and mismatched lengths score zero.
type Embedder interface {
	// Embed produces a vector embedding for the given text
	Embed(ctx context.Context, text string) ([]float32, error)
}
