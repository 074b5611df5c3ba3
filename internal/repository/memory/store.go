// Package memory implements the retrieval store in process memory with
// brute-force cosine search. It honors the same contract as the Postgres
// repository and backs both unit tests and dependency-free runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hollis-labs/ragline/internal/domain"
)

// Store is a mutex-guarded in-memory vector store.
type Store struct {
	mu         sync.RWMutex
	documents  map[string]*domain.Document
	chunks     map[string]*domain.Chunk
	embeddings map[string]*domain.Embedding
	// seq preserves insertion order for deterministic tie-breaks.
	chunkSeq map[string]int
	nextSeq  int
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		documents:  make(map[string]*domain.Document),
		chunks:     make(map[string]*domain.Chunk),
		embeddings: make(map[string]*domain.Embedding),
		chunkSeq:   make(map[string]int),
	}
}

// StoreDocument inserts a document, superseding active documents previously
// ingested from the same source path.
func (s *Store) StoreDocument(_ context.Context, sourcePath, title string, meta domain.Metadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, d := range s.documents {
		if d.SourcePath == sourcePath && d.DeletedAt == nil {
			at := now
			d.DeletedAt = &at
			d.UpdatedAt = now
		}
	}

	id := uuid.NewString()
	s.documents[id] = &domain.Document{
		ID:         id,
		SourcePath: sourcePath,
		Title:      title,
		Metadata:   meta.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return id, nil
}

// StoreChunks persists all candidates or none: validation happens before any
// write, so a failed call leaves the document without chunks.
func (s *Store) StoreChunks(_ context.Context, documentID string, candidates []domain.ChunkCandidate) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[documentID]; !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	for i, c := range candidates {
		if strings.TrimSpace(c.Content) == "" {
			return nil, fmt.Errorf("chunk %d has empty content: %w", i, domain.ErrConfiguration)
		}
	}

	now := time.Now()
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		id := uuid.NewString()
		s.chunks[id] = &domain.Chunk{
			ID:         id,
			DocumentID: documentID,
			Index:      i,
			Content:    c.Content,
			Metadata:   c.Metadata.Clone(),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.chunkSeq[id] = s.nextSeq
		s.nextSeq++
		ids[i] = id
	}
	return ids, nil
}

// StoreEmbeddings persists embedding rows after validating uniform vector
// lengths per model against both the batch and existing rows.
func (s *Store) StoreEmbeddings(_ context.Context, records []domain.EmbeddingRecord) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byModel := map[string][][]float32{}
	for _, rec := range records {
		if rec.Model == "" {
			return nil, fmt.Errorf("embedding for chunk %s has no model tag: %w",
				rec.ChunkID, domain.ErrIncompatibleModel)
		}
		if _, ok := s.chunks[rec.ChunkID]; !ok {
			return nil, fmt.Errorf("chunk %s: %w", rec.ChunkID, domain.ErrNotFound)
		}
		byModel[rec.Model] = append(byModel[rec.Model], rec.Vector)
	}
	for model, vectors := range byModel {
		dims, err := domain.ValidateBatchDims(vectors)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", model, err)
		}
		if stored := s.modelDimsLocked(model); stored > 0 && stored != dims {
			return nil, fmt.Errorf("model %s stores %d-dimensional vectors, got %d: %w",
				model, stored, dims, domain.ErrDimensionMismatch)
		}
	}

	now := time.Now()
	ids := make([]string, len(records))
	for i, rec := range records {
		id := uuid.NewString()
		vec := make([]float32, len(rec.Vector))
		copy(vec, rec.Vector)
		s.embeddings[id] = &domain.Embedding{
			ID:        id,
			ChunkID:   rec.ChunkID,
			Vector:    vec,
			Model:     rec.Model,
			CreatedAt: now,
			UpdatedAt: now,
		}
		ids[i] = id
	}
	return ids, nil
}

// Search scans all active embeddings for the model, scores them by cosine
// similarity, applies metadata filters, and returns the top_k results in
// descending score order with creation-order tie-breaks.
func (s *Store) Search(
	_ context.Context, queryVector []float32, model string, topK int,
	filters []domain.Filter, opts domain.SearchOptions,
) ([]domain.ScoredChunk, error) {
	if model == "" {
		return nil, fmt.Errorf("search requires a model tag: %w", domain.ErrIncompatibleModel)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d: %w", topK, domain.ErrConfiguration)
	}
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if stored := s.modelDimsLocked(model); stored > 0 && stored != len(queryVector) {
		return nil, fmt.Errorf("model %s stores %d-dimensional vectors, query has %d: %w",
			model, stored, len(queryVector), domain.ErrDimensionMismatch)
	}

	type scored struct {
		chunk *domain.Chunk
		score float64
		seq   int
	}
	var candidates []scored

	for _, e := range s.embeddings {
		if e.Model != model || e.DeletedAt != nil {
			continue
		}
		chunk, ok := s.chunks[e.ChunkID]
		if !ok || chunk.DeletedAt != nil {
			continue
		}
		doc, ok := s.documents[chunk.DocumentID]
		if !ok || doc.DeletedAt != nil {
			continue
		}
		if !matchesAll(filters, chunk, doc) {
			continue
		}
		score, err := domain.CosineSimilarity(queryVector, e.Vector)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, scored{chunk: chunk, score: score, seq: s.chunkSeq[chunk.ID]})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	if len(candidates) == 0 && opts.FailFast {
		return nil, domain.ErrEmptyIndex
	}

	results := make([]domain.ScoredChunk, len(candidates))
	for i, c := range candidates {
		results[i] = domain.ScoredChunk{
			ChunkID:    c.chunk.ID,
			DocumentID: c.chunk.DocumentID,
			Index:      c.chunk.Index,
			Content:    c.chunk.Content,
			Metadata:   c.chunk.Metadata.Clone(),
			Score:      c.score,
		}
	}
	return results, nil
}

// matchesAll evaluates filters against the chunk and its owning document.
// Keys the ingest path promotes to the document row (file_name, author and
// friends) still resolve through the document's metadata.
func matchesAll(filters []domain.Filter, chunk *domain.Chunk, doc *domain.Document) bool {
	for _, f := range filters {
		if f.Key == "source_path" && !f.IsRange() {
			if fmt.Sprint(f.Equals) != doc.SourcePath {
				return false
			}
			continue
		}
		if !f.Matches(chunk.Metadata) && !f.Matches(doc.Metadata) {
			return false
		}
	}
	return true
}

// SoftDeleteDocument marks a document inactive without touching its chunks
// or embeddings. Idempotent.
func (s *Store) SoftDeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	if doc.DeletedAt != nil {
		return nil
	}
	now := time.Now()
	doc.DeletedAt = &now
	doc.UpdatedAt = now
	return nil
}

// SoftDeleteChunk marks a single chunk inactive. Idempotent.
func (s *Store) SoftDeleteChunk(ctx context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, ok := s.chunks[chunkID]
	if !ok {
		return fmt.Errorf("chunk %s: %w", chunkID, domain.ErrNotFound)
	}
	if chunk.DeletedAt != nil {
		return nil
	}
	now := time.Now()
	chunk.DeletedAt = &now
	chunk.UpdatedAt = now
	return nil
}

// GetDocument returns a document by id, including soft-deleted ones.
func (s *Store) GetDocument(_ context.Context, documentID string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	return *doc, nil
}

// ChunksMissingEmbeddings returns active chunks of a document lacking an
// active embedding under the given model, in chunk order.
func (s *Store) ChunksMissingEmbeddings(_ context.Context, documentID, model string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	embedded := map[string]bool{}
	for _, e := range s.embeddings {
		if e.Model == model && e.DeletedAt == nil {
			embedded[e.ChunkID] = true
		}
	}

	var missing []domain.Chunk
	for _, c := range s.chunks {
		if c.DocumentID != documentID || c.DeletedAt != nil || embedded[c.ID] {
			continue
		}
		missing = append(missing, *c)
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Index < missing[j].Index })
	return missing, nil
}

func (s *Store) modelDimsLocked(model string) int {
	for _, e := range s.embeddings {
		if e.Model == model && e.DeletedAt == nil {
			return len(e.Vector)
		}
	}
	return 0
}
