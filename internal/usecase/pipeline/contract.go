package pipeline

import (
	"context"

	"github.com/hollis-labs/ragline/internal/domain"
	"github.com/hollis-labs/ragline/internal/loader"
)

// Store defines the storage contract for the ingestion and query flows.
type Store interface {
	StoreDocument(ctx context.Context, sourcePath, title string, meta domain.Metadata) (string, error)
	StoreChunks(ctx context.Context, documentID string, candidates []domain.ChunkCandidate) ([]string, error)
	StoreEmbeddings(ctx context.Context, records []domain.EmbeddingRecord) ([]string, error)
	GetDocument(ctx context.Context, documentID string) (domain.Document, error)
	ChunksMissingEmbeddings(ctx context.Context, documentID, model string) ([]domain.Chunk, error)
}

// Loader reads a source file into text, metadata, and page breaks.
type Loader interface {
	Load(path string) (*loader.Document, error)
}

// Chunker splits loaded text into chunk candidates.
type Chunker interface {
	Chunk(text string, pageBreaks []domain.PageBreak) ([]domain.ChunkCandidate, error)
	Name() string
}

// Embedder vectorizes texts into embeddings.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// Retriever returns ranked chunks for a query.
type Retriever interface {
	Retrieve(
		ctx context.Context, query string, topK int,
		filters []domain.Filter, opts domain.SearchOptions,
	) ([]domain.ScoredChunk, error)
}

// Generator produces an answer from prompts.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}
