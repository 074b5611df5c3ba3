package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/hollis-labs/ragline/internal/domain"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-model" }

type fakeStore struct {
	results []domain.ScoredChunk
	err     error

	gotVector []float32
	gotModel  string
	gotTopK   int
	gotOpts   domain.SearchOptions
}

func (f *fakeStore) Search(
	_ context.Context, queryVector []float32, model string, topK int,
	_ []domain.Filter, opts domain.SearchOptions,
) ([]domain.ScoredChunk, error) {
	f.gotVector = queryVector
	f.gotModel = model
	f.gotTopK = topK
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestRetrieve(t *testing.T) {
	store := &fakeStore{results: []domain.ScoredChunk{
		{ChunkID: "c1", Content: "hit", Score: 0.92},
	}}
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	svc := New(store, emb)

	results, err := svc.Retrieve(context.Background(), "what is chunking?", 3, nil,
		domain.SearchOptions{FailFast: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Fatalf("got %v", results)
	}
	if store.gotModel != "fake-model" {
		t.Errorf("search used model %q, want the embedder's tag", store.gotModel)
	}
	if store.gotTopK != 3 || !store.gotOpts.FailFast {
		t.Errorf("search got topK=%d opts=%+v", store.gotTopK, store.gotOpts)
	}
	if len(emb.texts) != 1 || emb.texts[0] != "what is chunking?" {
		t.Errorf("embedded texts = %v", emb.texts)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	svc := New(&fakeStore{}, &fakeEmbedder{vector: []float32{1}})

	_, err := svc.Retrieve(context.Background(), "   ", 3, nil, domain.SearchOptions{})
	if !errors.Is(err, domain.ErrRetrieval) {
		t.Fatalf("got %v, want ErrRetrieval", err)
	}
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("got %v, want wrapped ErrConfiguration", err)
	}
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	provErr := errors.New("provider down")
	svc := New(&fakeStore{}, &fakeEmbedder{err: provErr})

	_, err := svc.Retrieve(context.Background(), "query", 3, nil, domain.SearchOptions{})
	if !errors.Is(err, domain.ErrRetrieval) {
		t.Fatalf("got %v, want ErrRetrieval", err)
	}
	if !errors.Is(err, provErr) {
		t.Fatalf("got %v, want wrapped provider error", err)
	}
}

func TestRetrieveStoreFailure(t *testing.T) {
	svc := New(&fakeStore{err: domain.ErrEmptyIndex}, &fakeEmbedder{vector: []float32{1}})

	_, err := svc.Retrieve(context.Background(), "query", 3, nil, domain.SearchOptions{FailFast: true})
	if !errors.Is(err, domain.ErrRetrieval) {
		t.Fatalf("got %v, want ErrRetrieval", err)
	}
	if !errors.Is(err, domain.ErrEmptyIndex) {
		t.Fatalf("got %v, want wrapped ErrEmptyIndex", err)
	}
}
