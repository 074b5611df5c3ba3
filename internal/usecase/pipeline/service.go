// Package pipeline orchestrates ingestion and question answering over the
// retrieval store.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hollis-labs/ragline/internal/domain"
	"github.com/hollis-labs/ragline/internal/logger"
)

const systemPrompt = "You are an assistant for question-answering tasks."

const userPromptTemplate = "Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, just say that you don't know.\n" +
	"ONLY output the final answer. Do NOT repeat the question, the context, " +
	"or any part of this instruction.\n" +
	"Question: %s\n" +
	"Context: %s\n" +
	"Answer:"

// Options bounds the query flow.
type Options struct {
	TopK            int
	FailFast        bool
	MaxContextChars int
}

// Service wires loader, chunker, embedder, store, retriever, and generator
// into the ingest and query flows.
type Service struct {
	store     Store
	load      Loader
	chunker   Chunker
	embed     Embedder
	retriever Retriever
	generate  Generator
	opts      Options
}

// New creates a pipeline service.
func New(
	store Store, load Loader, chunker Chunker, embed Embedder,
	retriever Retriever, generate Generator, opts Options,
) *Service {
	return &Service{
		store:     store,
		load:      load,
		chunker:   chunker,
		embed:     embed,
		retriever: retriever,
		generate:  generate,
		opts:      opts,
	}
}

// IngestResult reports what a completed ingestion produced.
type IngestResult struct {
	DocumentID string
	JobID      string
	Chunks     int
	Embeddings int
}

// Ingest loads a file, chunks it, stores the document and chunks, embeds
// the chunk texts in one batch, and stores the embeddings. A failure after
// chunks are stored leaves a recoverable document that Resume can finish.
func (s *Service) Ingest(ctx context.Context, path string) (IngestResult, error) {
	log := logger.FromContext(ctx)
	jobID := uuid.NewString()
	log.Info("starting ingestion job",
		zap.String("job_id", jobID),
		zap.String("path", path),
	)

	doc, err := s.load.Load(path)
	if err != nil {
		return IngestResult{}, fmt.Errorf("load %s: %w", path, err)
	}

	candidates, err := s.chunker.Chunk(doc.Text, doc.PageBreaks)
	if err != nil {
		return IngestResult{}, fmt.Errorf("chunk %s: %w", path, err)
	}
	if len(candidates) == 0 {
		return IngestResult{}, fmt.Errorf("%s produced no chunks: %w", path, domain.ErrConfiguration)
	}

	meta := doc.Metadata.Clone()
	if meta == nil {
		meta = domain.Metadata{}
	}
	meta[domain.MetaIngestionJobID] = jobID
	docMeta, chunkMeta := domain.SplitDocumentMeta(meta)
	title, _ := docMeta[domain.MetaFileName].(string)

	// Loader metadata that is not document-level travels with every chunk.
	if len(chunkMeta) > 0 {
		for i := range candidates {
			if candidates[i].Metadata == nil {
				candidates[i].Metadata = domain.Metadata{}
			}
			for k, v := range chunkMeta {
				if _, ok := candidates[i].Metadata[k]; !ok {
					candidates[i].Metadata[k] = v
				}
			}
		}
	}

	docID, err := s.store.StoreDocument(ctx, path, title, docMeta)
	if err != nil {
		return IngestResult{}, fmt.Errorf("store document: %w", err)
	}

	chunkIDs, err := s.store.StoreChunks(ctx, docID, candidates)
	if err != nil {
		return IngestResult{}, fmt.Errorf("store chunks: %w", err)
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}
	embedded, err := s.embedAndStore(ctx, chunkIDs, texts)
	if err != nil {
		// Document and chunks are durable; Resume can pick up from here.
		log.Warn("ingestion left a partially embedded document",
			zap.String("job_id", jobID),
			zap.String("document_id", docID),
			zap.Error(err),
		)
		return IngestResult{DocumentID: docID, JobID: jobID, Chunks: len(chunkIDs)}, err
	}

	log.Info("ingestion complete",
		zap.String("job_id", jobID),
		zap.String("document_id", docID),
		zap.Int("chunks", len(chunkIDs)),
	)
	return IngestResult{
		DocumentID: docID,
		JobID:      jobID,
		Chunks:     len(chunkIDs),
		Embeddings: embedded,
	}, nil
}

// Resume embeds any chunks of the document that lack an embedding under the
// current model. Completed documents are a no-op, so Resume is idempotent.
func (s *Service) Resume(ctx context.Context, documentID string) (int, error) {
	log := logger.FromContext(ctx)

	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return 0, fmt.Errorf("get document: %w", err)
	}

	missing, err := s.store.ChunksMissingEmbeddings(ctx, documentID, s.embed.ModelName())
	if err != nil {
		return 0, fmt.Errorf("list missing embeddings: %w", err)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	chunkIDs := make([]string, len(missing))
	texts := make([]string, len(missing))
	for i, c := range missing {
		chunkIDs[i] = c.ID
		texts[i] = c.Content
	}

	embedded, err := s.embedAndStore(ctx, chunkIDs, texts)
	if err != nil {
		return 0, err
	}

	log.Info("resumed embedding",
		zap.String("document_id", documentID),
		zap.Int("embedded", embedded),
	)
	return embedded, nil
}

func (s *Service) embedAndStore(ctx context.Context, chunkIDs []string, texts []string) (int, error) {
	vectors, err := s.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks: %w",
			len(vectors), len(texts), domain.ErrProvider)
	}

	records := make([]domain.EmbeddingRecord, len(chunkIDs))
	for i, id := range chunkIDs {
		records[i] = domain.EmbeddingRecord{
			ChunkID: id,
			Vector:  vectors[i],
			Model:   s.embed.ModelName(),
		}
	}
	if _, err := s.store.StoreEmbeddings(ctx, records); err != nil {
		return 0, fmt.Errorf("store embeddings: %w", err)
	}
	return len(records), nil
}

// Answer is the query flow output: the generated answer plus the chunks it
// was grounded on.
type Answer struct {
	Text    string
	Sources []domain.ScoredChunk
}

// Query retrieves context for the question, assembles a bounded prompt, and
// generates an answer.
func (s *Service) Query(ctx context.Context, question string, filters []domain.Filter) (Answer, error) {
	log := logger.FromContext(ctx)

	results, err := s.retriever.Retrieve(ctx, question, s.opts.TopK, filters,
		domain.SearchOptions{FailFast: s.opts.FailFast})
	if err != nil {
		return Answer{}, err
	}

	ctxText := s.assembleContext(results)
	user := fmt.Sprintf(userPromptTemplate, question, ctxText)

	answer, err := s.generate.Generate(ctx, systemPrompt, user)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	log.Debug("query answered",
		zap.Int("sources", len(results)),
		zap.Int("context_chars", len(ctxText)),
	)
	return Answer{Text: answer, Sources: results}, nil
}

// assembleContext joins chunk contents with blank lines, stopping before the
// context would exceed MaxContextChars. At least one chunk is always kept so
// an oversized first chunk cannot empty the prompt.
func (s *Service) assembleContext(results []domain.ScoredChunk) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 && s.opts.MaxContextChars > 0 &&
			b.Len()+2+len(r.Content) > s.opts.MaxContextChars {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Content)
	}
	return b.String()
}
