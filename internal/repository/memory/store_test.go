package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/hollis-labs/ragline/internal/domain"
)

const testModel = "text-embedding-3-small"

func fptr(f float64) *float64 { return &f }

func seedDocument(t *testing.T, s *Store, sourcePath string, contents []string, metas []domain.Metadata, vectors [][]float32) (string, []string) {
	t.Helper()
	ctx := context.Background()

	docID, err := s.StoreDocument(ctx, sourcePath, "", nil)
	if err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	candidates := make([]domain.ChunkCandidate, len(contents))
	for i, c := range contents {
		candidates[i] = domain.ChunkCandidate{Index: i, Content: c}
		if metas != nil {
			candidates[i].Metadata = metas[i]
		}
	}
	chunkIDs, err := s.StoreChunks(ctx, docID, candidates)
	if err != nil {
		t.Fatalf("StoreChunks: %v", err)
	}

	if vectors != nil {
		records := make([]domain.EmbeddingRecord, len(chunkIDs))
		for i, id := range chunkIDs {
			records[i] = domain.EmbeddingRecord{ChunkID: id, Vector: vectors[i], Model: testModel}
		}
		if _, err := s.StoreEmbeddings(ctx, records); err != nil {
			t.Fatalf("StoreEmbeddings: %v", err)
		}
	}
	return docID, chunkIDs
}

func TestSearchOrdering(t *testing.T) {
	s := NewStore()
	_, chunkIDs := seedDocument(t, s, "/docs/a.txt",
		[]string{"far", "near", "exact"},
		nil,
		[][]float32{{0, 1, 0}, {1, 0.2, 0}, {1, 0, 0}},
	)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, testModel, 3, nil, domain.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not non-increasing at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
	if results[0].ChunkID != chunkIDs[2] {
		t.Errorf("identical vector should rank first, got chunk %q", results[0].Content)
	}
	if results[0].Score < 0.9999 {
		t.Errorf("identical vector score = %f, want 1.0", results[0].Score)
	}
}

func TestSearchTopKTruncation(t *testing.T) {
	s := NewStore()
	seedDocument(t, s, "/docs/a.txt",
		[]string{"a", "b", "c", "d"},
		nil,
		[][]float32{{1, 0}, {0.9, 0.1}, {0.8, 0.2}, {0, 1}},
	)

	results, err := s.Search(context.Background(), []float32{1, 0}, testModel, 2, nil, domain.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestSearchMetadataFilter(t *testing.T) {
	s := NewStore()
	seedDocument(t, s, "/docs/a.txt",
		[]string{"page one", "page two"},
		[]domain.Metadata{
			{domain.MetaPageNumber: 1},
			{domain.MetaPageNumber: 2},
		},
		[][]float32{{1, 0}, {1, 0}},
	)

	results, err := s.Search(context.Background(), []float32{1, 0}, testModel, 10,
		[]domain.Filter{domain.Eq(domain.MetaPageNumber, 2)}, domain.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "page two" {
		t.Fatalf("page filter returned %v", results)
	}
}

func TestSearchDocumentMetadataFilter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	store := func(path, author, content string) {
		t.Helper()
		docID, err := s.StoreDocument(ctx, path, "", domain.Metadata{domain.MetaAuthor: author})
		if err != nil {
			t.Fatalf("StoreDocument: %v", err)
		}
		chunkIDs, err := s.StoreChunks(ctx, docID, []domain.ChunkCandidate{{Index: 0, Content: content}})
		if err != nil {
			t.Fatalf("StoreChunks: %v", err)
		}
		records := []domain.EmbeddingRecord{{ChunkID: chunkIDs[0], Vector: []float32{1, 0}, Model: testModel}}
		if _, err := s.StoreEmbeddings(ctx, records); err != nil {
			t.Fatalf("StoreEmbeddings: %v", err)
		}
	}
	store("/docs/a.txt", "jane", "chapter by jane")
	store("/docs/b.txt", "bob", "chapter by bob")

	// author lives on the document row, not the chunk rows.
	results, err := s.Search(ctx, []float32{1, 0}, testModel, 10,
		[]domain.Filter{domain.Eq(domain.MetaAuthor, "jane")}, domain.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "chapter by jane" {
		t.Fatalf("author filter returned %v", results)
	}
}

func TestSearchRangeFilter(t *testing.T) {
	s := NewStore()
	seedDocument(t, s, "/docs/a.txt",
		[]string{"one", "two", "three"},
		[]domain.Metadata{
			{domain.MetaPageNumber: 1},
			{domain.MetaPageNumber: 2},
			{domain.MetaPageNumber: 3},
		},
		[][]float32{{1, 0}, {1, 0}, {1, 0}},
	)

	results, err := s.Search(context.Background(), []float32{1, 0}, testModel, 10,
		[]domain.Filter{domain.Between(domain.MetaPageNumber, fptr(2), fptr(3))}, domain.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("range filter returned %d results, want 2", len(results))
	}
}

func TestSearchSourcePathFilter(t *testing.T) {
	s := NewStore()
	seedDocument(t, s, "/docs/a.txt", []string{"from a"}, nil, [][]float32{{1, 0}})
	seedDocument(t, s, "/docs/b.txt", []string{"from b"}, nil, [][]float32{{1, 0}})

	results, err := s.Search(context.Background(), []float32{1, 0}, testModel, 10,
		[]domain.Filter{domain.Eq("source_path", "/docs/b.txt")}, domain.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "from b" {
		t.Fatalf("source_path filter returned %v", results)
	}
}

func TestSoftDeleteDocumentExcludesChunks(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	docID, chunkIDs := seedDocument(t, s, "/docs/a.txt", []string{"gone"}, nil, [][]float32{{1, 0}})

	if err := s.SoftDeleteDocument(ctx, docID); err != nil {
		t.Fatalf("SoftDeleteDocument: %v", err)
	}
	// Second delete is a no-op, not an error.
	if err := s.SoftDeleteDocument(ctx, docID); err != nil {
		t.Fatalf("repeat SoftDeleteDocument: %v", err)
	}

	// Chunk rows keep their own deleted_at untouched.
	if s.chunks[chunkIDs[0]].DeletedAt != nil {
		t.Error("soft-deleting a document must not cascade writes to chunks")
	}

	results, err := s.Search(ctx, []float32{1, 0}, testModel, 10, nil, domain.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("chunks of a deleted document still searchable: %v", results)
	}
}

func TestSoftDeleteChunk(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, chunkIDs := seedDocument(t, s, "/docs/a.txt", []string{"keep", "drop"}, nil,
		[][]float32{{1, 0}, {1, 0}})

	if err := s.SoftDeleteChunk(ctx, chunkIDs[1]); err != nil {
		t.Fatalf("SoftDeleteChunk: %v", err)
	}
	results, err := s.Search(ctx, []float32{1, 0}, testModel, 10, nil, domain.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "keep" {
		t.Fatalf("got %v, want only the surviving chunk", results)
	}

	if err := s.SoftDeleteChunk(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleting unknown chunk: got %v, want ErrNotFound", err)
	}
}

func TestStoreChunksAtomic(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	docID, err := s.StoreDocument(ctx, "/docs/a.txt", "", nil)
	if err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	_, err = s.StoreChunks(ctx, docID, []domain.ChunkCandidate{
		{Index: 0, Content: "fine"},
		{Index: 1, Content: "   "},
	})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}
	if len(s.chunks) != 0 {
		t.Errorf("failed batch left %d chunks behind", len(s.chunks))
	}
}

func TestStoreEmbeddingsValidation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, chunkIDs := seedDocument(t, s, "/docs/a.txt", []string{"a", "b"}, nil, nil)

	_, err := s.StoreEmbeddings(ctx, []domain.EmbeddingRecord{
		{ChunkID: chunkIDs[0], Vector: []float32{1, 0}, Model: testModel},
		{ChunkID: chunkIDs[1], Vector: []float32{1, 0, 0}, Model: testModel},
	})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("ragged batch: got %v, want ErrDimensionMismatch", err)
	}

	_, err = s.StoreEmbeddings(ctx, []domain.EmbeddingRecord{
		{ChunkID: chunkIDs[0], Vector: []float32{1, 0}},
	})
	if !errors.Is(err, domain.ErrIncompatibleModel) {
		t.Errorf("missing model tag: got %v, want ErrIncompatibleModel", err)
	}

	_, err = s.StoreEmbeddings(ctx, []domain.EmbeddingRecord{
		{ChunkID: "missing", Vector: []float32{1, 0}, Model: testModel},
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown chunk: got %v, want ErrNotFound", err)
	}

	// First write fixes the model's dimensionality.
	if _, err := s.StoreEmbeddings(ctx, []domain.EmbeddingRecord{
		{ChunkID: chunkIDs[0], Vector: []float32{1, 0}, Model: testModel},
	}); err != nil {
		t.Fatalf("StoreEmbeddings: %v", err)
	}
	_, err = s.StoreEmbeddings(ctx, []domain.EmbeddingRecord{
		{ChunkID: chunkIDs[1], Vector: []float32{1, 0, 0}, Model: testModel},
	})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("dims drift: got %v, want ErrDimensionMismatch", err)
	}
}

func TestSearchModelScoping(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, chunkIDs := seedDocument(t, s, "/docs/a.txt", []string{"a"}, nil, nil)

	if _, err := s.StoreEmbeddings(ctx, []domain.EmbeddingRecord{
		{ChunkID: chunkIDs[0], Vector: []float32{1, 0}, Model: "model-a"},
	}); err != nil {
		t.Fatalf("StoreEmbeddings: %v", err)
	}

	if _, err := s.Search(ctx, []float32{1, 0}, "", 3, nil, domain.SearchOptions{}); !errors.Is(err, domain.ErrIncompatibleModel) {
		t.Errorf("empty model: got %v, want ErrIncompatibleModel", err)
	}
	if _, err := s.Search(ctx, []float32{1, 0, 0}, "model-a", 3, nil, domain.SearchOptions{}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("wrong query dims: got %v, want ErrDimensionMismatch", err)
	}

	// A model with no rows yields no matches, not an error, unless fail-fast.
	results, err := s.Search(ctx, []float32{1, 0}, "model-b", 3, nil, domain.SearchOptions{})
	if err != nil || len(results) != 0 {
		t.Errorf("unknown model: got %v, %v", results, err)
	}
	if _, err := s.Search(ctx, []float32{1, 0}, "model-b", 3, nil, domain.SearchOptions{FailFast: true}); !errors.Is(err, domain.ErrEmptyIndex) {
		t.Errorf("fail-fast on empty result: got %v, want ErrEmptyIndex", err)
	}
}

func TestReingestSupersedes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	oldID, _ := seedDocument(t, s, "/docs/a.txt", []string{"v1"}, nil, [][]float32{{1, 0}})
	newID, _ := seedDocument(t, s, "/docs/a.txt", []string{"v2"}, nil, [][]float32{{1, 0}})

	old, err := s.GetDocument(ctx, oldID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if old.DeletedAt == nil {
		t.Error("re-ingesting a source path must supersede the old document")
	}

	results, err := s.Search(ctx, []float32{1, 0}, testModel, 10, nil, domain.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != newID {
		t.Fatalf("search should only see the new document, got %v", results)
	}
}

func TestChunksMissingEmbeddings(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, chunkIDs := seedDocument(t, s, "/docs/a.txt", []string{"a", "b", "c"}, nil, nil)
	docID := s.chunks[chunkIDs[0]].DocumentID

	missing, err := s.ChunksMissingEmbeddings(ctx, docID, testModel)
	if err != nil {
		t.Fatalf("ChunksMissingEmbeddings: %v", err)
	}
	if len(missing) != 3 {
		t.Fatalf("got %d missing, want 3", len(missing))
	}

	if _, err := s.StoreEmbeddings(ctx, []domain.EmbeddingRecord{
		{ChunkID: chunkIDs[1], Vector: []float32{1, 0}, Model: testModel},
	}); err != nil {
		t.Fatalf("StoreEmbeddings: %v", err)
	}
	missing, err = s.ChunksMissingEmbeddings(ctx, docID, testModel)
	if err != nil {
		t.Fatalf("ChunksMissingEmbeddings: %v", err)
	}
	if len(missing) != 2 || missing[0].Index != 0 || missing[1].Index != 2 {
		t.Fatalf("got %+v, want chunks 0 and 2", missing)
	}
}
