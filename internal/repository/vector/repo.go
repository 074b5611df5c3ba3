// Package vector implements the retrieval store on Postgres with pgvector.
// Soft-deleted rows at any level of the document/chunk/embedding chain are
// excluded at query time; nothing is ever physically deleted here.
package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/hollis-labs/ragline/internal/domain"
)

// Repo implements the pipeline and retrieval store contracts on Postgres.
type Repo struct {
	db *sqlx.DB
}

// New creates a Postgres-backed vector store repository.
func New(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// StoreDocument inserts a document row. Active documents previously ingested
// from the same source path are superseded: they are soft-deleted in the
// same transaction, so search only ever sees the latest ingest of a path.
func (r *Repo) StoreDocument(ctx context.Context, sourcePath, title string, meta domain.Metadata) (string, error) {
	blob, err := marshalMeta(meta)
	if err != nil {
		return "", fmt.Errorf("marshal document metadata: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const supersede = `
		UPDATE documents
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE source_path = $1 AND deleted_at IS NULL
	`
	if _, err := tx.ExecContext(ctx, supersede, sourcePath); err != nil {
		return "", fmt.Errorf("supersede documents for %s: %w", sourcePath, err)
	}

	id := uuid.NewString()
	const insert = `
		INSERT INTO documents (id, source_path, title, metadata)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`
	if _, err := tx.ExecContext(ctx, insert, id, sourcePath, title, blob); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit document: %w", err)
	}
	return id, nil
}

// StoreChunks persists all candidates for a document in one transaction,
// preserving positional order as chunk_index. Either every chunk lands or
// none do.
func (r *Repo) StoreChunks(ctx context.Context, documentID string, candidates []domain.ChunkCandidate) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	for i, c := range candidates {
		if strings.TrimSpace(c.Content) == "" {
			return nil, fmt.Errorf("chunk %d has empty content: %w", i, domain.ErrConfiguration)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `
		INSERT INTO chunks (id, document_id, chunk_index, content, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		blob, err := marshalMeta(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal chunk %d metadata: %w", i, err)
		}
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx, insert, id, documentID, i, c.Content, blob); err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", i, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit chunks: %w", err)
	}
	return ids, nil
}

// StoreEmbeddings persists embedding rows transactionally. Vector lengths
// must be uniform per model within the batch and must match any embeddings
// already stored under the same model tag.
func (r *Repo) StoreEmbeddings(ctx context.Context, records []domain.EmbeddingRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	byModel := map[string][][]float32{}
	chunkIDs := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Model == "" {
			return nil, fmt.Errorf("embedding for chunk %s has no model tag: %w", rec.ChunkID, domain.ErrIncompatibleModel)
		}
		byModel[rec.Model] = append(byModel[rec.Model], rec.Vector)
		chunkIDs = append(chunkIDs, rec.ChunkID)
	}
	for model, vectors := range byModel {
		dims, err := domain.ValidateBatchDims(vectors)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", model, err)
		}
		stored, err := r.modelDims(ctx, model)
		if err != nil {
			return nil, err
		}
		if stored > 0 && stored != dims {
			return nil, fmt.Errorf("model %s stores %d-dimensional vectors, got %d: %w",
				model, stored, dims, domain.ErrDimensionMismatch)
		}
	}

	if err := r.checkChunksExist(ctx, chunkIDs); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `
		INSERT INTO embeddings (id, chunk_id, embedding, model)
		VALUES ($1, $2, $3, $4)
	`
	ids := make([]string, len(records))
	for i, rec := range records {
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx, insert, id, rec.ChunkID, pgvector.NewVector(rec.Vector), rec.Model); err != nil {
			return nil, fmt.Errorf("insert embedding for chunk %s: %w", rec.ChunkID, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit embeddings: %w", err)
	}
	return ids, nil
}

// Search ranks active chunks by cosine similarity against the query vector,
// restricted to the given model tag and to rows whose metadata satisfies
// every filter. Results come back in descending score order; ties break by
// chunk creation order.
func (r *Repo) Search(
	ctx context.Context, queryVector []float32, model string, topK int,
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

	stored, err := r.modelDims(ctx, model)
	if err != nil {
		return nil, err
	}
	if stored > 0 && stored != len(queryVector) {
		return nil, fmt.Errorf("model %s stores %d-dimensional vectors, query has %d: %w",
			model, stored, len(queryVector), domain.ErrDimensionMismatch)
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.metadata,
		       1 - (e.embedding <=> $1) AS score
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id AND c.deleted_at IS NULL
		JOIN documents d ON d.id = c.document_id AND d.deleted_at IS NULL
		WHERE e.deleted_at IS NULL AND e.model = $2`)
	args := []any{pgvector.NewVector(queryVector), model}

	for _, f := range filters {
		args, err = appendFilterSQL(&sb, args, f)
		if err != nil {
			return nil, err
		}
	}

	sb.WriteString(fmt.Sprintf(`
		ORDER BY e.embedding <=> $1, c.created_at ASC, c.chunk_index ASC
		LIMIT $%d`, len(args)+1))
	args = append(args, topK)

	rows, err := r.db.QueryxContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var results []domain.ScoredChunk
	for rows.Next() {
		var row scoredRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		sc, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}

	if len(results) == 0 && opts.FailFast {
		return nil, domain.ErrEmptyIndex
	}
	return results, nil
}

// appendFilterSQL adds one AND condition for a filter and returns the grown
// argument list. source_path targets the document row; every other key
// resolves against the chunk's metadata first and falls back to the owning
// document's, since ingest promotes document-level keys (file_name, author)
// off the chunk rows. The JSONB existence check makes a key absent from both
// rows exclude the row even for open-ended ranges.
func appendFilterSQL(sb *strings.Builder, args []any, f domain.Filter) ([]any, error) {
	n := func() int { return len(args) + 1 }
	switch {
	case f.Key == "source_path" && !f.IsRange():
		fmt.Fprintf(sb, " AND d.source_path = $%d", n())
		args = append(args, fmt.Sprint(f.Equals))
	case f.IsRange():
		fmt.Fprintf(sb, " AND (c.metadata ? $%d OR d.metadata ? $%d)", n(), n())
		args = append(args, f.Key)
		if f.Min != nil {
			fmt.Fprintf(sb, " AND COALESCE(c.metadata->>$%d, d.metadata->>$%d)::numeric >= $%d", n(), n(), n()+1)
			args = append(args, f.Key, *f.Min)
		}
		if f.Max != nil {
			fmt.Fprintf(sb, " AND COALESCE(c.metadata->>$%d, d.metadata->>$%d)::numeric <= $%d", n(), n(), n()+1)
			args = append(args, f.Key, *f.Max)
		}
	default:
		fmt.Fprintf(sb, " AND COALESCE(c.metadata->>$%d, d.metadata->>$%d) = $%d", n(), n(), n()+1)
		args = append(args, f.Key, metaText(f.Equals))
	}
	return args, nil
}

// metaText renders a filter value the way JSONB ->> renders it.
func metaText(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(v)
	}
}

// SoftDeleteDocument marks a document inactive. Its chunks and embeddings
// disappear from search through the query-time joins; no cascading writes
// happen. Deleting an already-deleted document is a no-op.
func (r *Repo) SoftDeleteDocument(ctx context.Context, documentID string) error {
	return r.softDelete(ctx, "documents", documentID)
}

// SoftDeleteChunk marks a single chunk inactive.
func (r *Repo) SoftDeleteChunk(ctx context.Context, chunkID string) error {
	return r.softDelete(ctx, "chunks", chunkID)
}

func (r *Repo) softDelete(ctx context.Context, table, id string) error {
	var exists bool
	check := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := r.db.GetContext(ctx, &exists, check, id); err != nil {
		return fmt.Errorf("check %s %s: %w", table, id, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", strings.TrimSuffix(table, "s"), id, domain.ErrNotFound)
	}

	update := fmt.Sprintf(`
		UPDATE %s SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, table)
	if _, err := r.db.ExecContext(ctx, update, id); err != nil {
		return fmt.Errorf("soft delete %s %s: %w", table, id, err)
	}
	return nil
}

// GetDocument returns a document by id, including soft-deleted ones.
func (r *Repo) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	const query = `
		SELECT id, source_path, title, metadata, created_at, updated_at, deleted_at
		FROM documents WHERE id = $1
	`
	var row documentRow
	if err := r.db.GetContext(ctx, &row, query, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
		}
		return domain.Document{}, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return row.toDomain()
}

// ChunksMissingEmbeddings returns the active chunks of a document that have
// no active embedding under the given model, in chunk order. A non-empty
// result marks the recoverable partial-ingest state.
func (r *Repo) ChunksMissingEmbeddings(ctx context.Context, documentID, model string) ([]domain.Chunk, error) {
	const query = `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.metadata,
		       c.created_at, c.updated_at, c.deleted_at
		FROM chunks c
		LEFT JOIN embeddings e
		       ON e.chunk_id = c.id AND e.model = $2 AND e.deleted_at IS NULL
		WHERE c.document_id = $1 AND c.deleted_at IS NULL AND e.id IS NULL
		ORDER BY c.chunk_index ASC
	`
	rows, err := r.db.QueryxContext(ctx, query, documentID, model)
	if err != nil {
		return nil, fmt.Errorf("chunks missing embeddings for %s: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var row chunkRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		c, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// modelDims returns the vector length stored for a model tag, or 0 when the
// model has no active embeddings yet.
func (r *Repo) modelDims(ctx context.Context, model string) (int, error) {
	const query = `
		SELECT vector_dims(embedding)
		FROM embeddings
		WHERE model = $1 AND deleted_at IS NULL
		LIMIT 1
	`
	var dims int
	if err := r.db.GetContext(ctx, &dims, query, model); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("model dims for %s: %w", model, err)
	}
	return dims, nil
}

// checkChunksExist verifies every referenced chunk id is present and active.
func (r *Repo) checkChunksExist(ctx context.Context, chunkIDs []string) error {
	query, args, err := sqlx.In(
		`SELECT id FROM chunks WHERE id IN (?) AND deleted_at IS NULL`, chunkIDs)
	if err != nil {
		return fmt.Errorf("build chunk check: %w", err)
	}
	query = r.db.Rebind(query)

	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return fmt.Errorf("check chunks: %w", err)
	}
	if len(found) == len(chunkIDs) {
		return nil
	}

	seen := make(map[string]bool, len(found))
	for _, id := range found {
		seen[id] = true
	}
	for _, id := range chunkIDs {
		if !seen[id] {
			return fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
		}
	}
	return nil
}
