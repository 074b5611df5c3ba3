package retrieval

import (
	"context"

	"github.com/hollis-labs/ragline/internal/domain"
)

// Store defines the vector store contract for retrieval.
type Store interface {
	Search(
		ctx context.Context, queryVector []float32, model string, topK int,
		filters []domain.Filter, opts domain.SearchOptions,
	) ([]domain.ScoredChunk, error)
}

// Embedder vectorizes texts into embeddings.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}
