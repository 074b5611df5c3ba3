package vector

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hollis-labs/ragline/internal/domain"
)

// chunkRow mirrors the chunks table for sqlx scanning.
type chunkRow struct {
	ID         string     `db:"id"`
	DocumentID string     `db:"document_id"`
	ChunkIndex int        `db:"chunk_index"`
	Content    string     `db:"content"`
	Metadata   []byte     `db:"metadata"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at"`
}

func (r *chunkRow) toDomain() (domain.Chunk, error) {
	meta, err := unmarshalMeta(r.Metadata)
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("chunk %s metadata: %w", r.ID, err)
	}
	return domain.Chunk{
		ID:         r.ID,
		DocumentID: r.DocumentID,
		Index:      r.ChunkIndex,
		Content:    r.Content,
		Metadata:   meta,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		DeletedAt:  r.DeletedAt,
	}, nil
}

// scoredRow mirrors one search result row.
type scoredRow struct {
	ChunkID    string  `db:"id"`
	DocumentID string  `db:"document_id"`
	ChunkIndex int     `db:"chunk_index"`
	Content    string  `db:"content"`
	Metadata   []byte  `db:"metadata"`
	Score      float64 `db:"score"`
}

func (r *scoredRow) toDomain() (domain.ScoredChunk, error) {
	meta, err := unmarshalMeta(r.Metadata)
	if err != nil {
		return domain.ScoredChunk{}, fmt.Errorf("chunk %s metadata: %w", r.ChunkID, err)
	}
	return domain.ScoredChunk{
		ChunkID:    r.ChunkID,
		DocumentID: r.DocumentID,
		Index:      r.ChunkIndex,
		Content:    r.Content,
		Metadata:   meta,
		Score:      r.Score,
	}, nil
}

// documentRow mirrors the documents table.
type documentRow struct {
	ID         string     `db:"id"`
	SourcePath string     `db:"source_path"`
	Title      *string    `db:"title"`
	Metadata   []byte     `db:"metadata"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at"`
}

func (r *documentRow) toDomain() (domain.Document, error) {
	meta, err := unmarshalMeta(r.Metadata)
	if err != nil {
		return domain.Document{}, fmt.Errorf("document %s metadata: %w", r.ID, err)
	}
	title := ""
	if r.Title != nil {
		title = *r.Title
	}
	return domain.Document{
		ID:         r.ID,
		SourcePath: r.SourcePath,
		Title:      title,
		Metadata:   meta,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		DeletedAt:  r.DeletedAt,
	}, nil
}

func marshalMeta(meta domain.Metadata) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

func unmarshalMeta(data []byte) (domain.Metadata, error) {
	if len(data) == 0 {
		return domain.Metadata{}, nil
	}
	var meta domain.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}
