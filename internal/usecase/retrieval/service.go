// Package retrieval turns a natural-language query into ranked chunks.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hollis-labs/ragline/internal/domain"
	"github.com/hollis-labs/ragline/internal/logger"
)

// Service embeds queries and searches the vector store.
type Service struct {
	store Store
	embed Embedder
}

// New creates a retrieval service.
func New(store Store, embed Embedder) *Service {
	return &Service{store: store, embed: embed}
}

// Retrieve embeds the query text and returns the top_k most similar active
// chunks. Every failure surfaces as a retrieval error wrapping its cause.
func (s *Service) Retrieve(
	ctx context.Context, query string, topK int,
	filters []domain.Filter, opts domain.SearchOptions,
) ([]domain.ScoredChunk, error) {
	log := logger.FromContext(ctx)

	if strings.TrimSpace(query) == "" {
		return nil, domain.NewRetrievalError(
			fmt.Errorf("query text is empty: %w", domain.ErrConfiguration))
	}

	vectors, err := s.embed.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, domain.NewRetrievalError(fmt.Errorf("vectorize query: %w", err))
	}
	if len(vectors) != 1 {
		return nil, domain.NewRetrievalError(
			fmt.Errorf("embedder returned %d vectors for one query: %w",
				len(vectors), domain.ErrProvider))
	}

	results, err := s.store.Search(ctx, vectors[0], s.embed.ModelName(), topK, filters, opts)
	if err != nil {
		return nil, domain.NewRetrievalError(fmt.Errorf("search: %w", err))
	}

	log.Debug("retrieval completed",
		zap.String("model", s.embed.ModelName()),
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
	)
	return results, nil
}
