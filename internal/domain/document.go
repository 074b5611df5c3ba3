// Package domain holds the entities and invariants of the retrieval store:
// documents, their ordered chunks, and per-model chunk embeddings.
package domain

import "time"

// Metadata is an open key-value map attached to documents and chunks.
// Values round-trip through JSON, so numbers come back as float64.
type Metadata map[string]any

// Well-known metadata keys written by the chunker and loaders.
const (
	MetaFileName       = "file_name"
	MetaFileType       = "file_type"
	MetaFileSize       = "file_size"
	MetaAuthor         = "author"
	MetaIngestionJobID = "ingestion_job_id"
	MetaPageNumber     = "page_number"
	MetaTokenCount     = "token_count"
	MetaChunkStrategy  = "chunk_strategy"
	MetaChunkSize      = "chunk_size"
	MetaChunkOverlap   = "chunk_overlap"
)

// documentKeys are promoted from chunk metadata to the document row at ingest.
var documentKeys = map[string]bool{
	MetaFileName:       true,
	MetaFileType:       true,
	MetaFileSize:       true,
	MetaAuthor:         true,
	MetaIngestionJobID: true,
	"tags":             true,
}

// SplitDocumentMeta partitions metadata into document-level and chunk-level maps.
func SplitDocumentMeta(meta Metadata) (doc Metadata, chunk Metadata) {
	doc = Metadata{}
	chunk = Metadata{}
	for k, v := range meta {
		if documentKeys[k] {
			doc[k] = v
		} else {
			chunk[k] = v
		}
	}
	return doc, chunk
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Document is one ingested source file. It owns zero or more chunks and is
// never physically deleted: DeletedAt marks it inactive for all queries.
type Document struct {
	ID         string
	SourcePath string
	Title      string
	Metadata   Metadata
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Active reports whether the document is visible to search and retrieval.
func (d *Document) Active() bool { return d.DeletedAt == nil }

// Chunk is one contiguous, ordered segment of a document's text.
// Index values for a document form the contiguous sequence 0..n-1 in
// original text order; re-assembly of multi-chunk context depends on it.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Content    string
	Metadata   Metadata
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Active reports whether the chunk is visible to search.
func (c *Chunk) Active() bool { return c.DeletedAt == nil }

// Embedding is one vector representation of a chunk under a specific model.
// All embeddings compared in a single search must share the same vector
// length and model tag.
type Embedding struct {
	ID        string
	ChunkID   string
	Vector    []float32
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// ChunkCandidate is the chunker's output before persistence: content plus
// metadata at a zero-based position in the source text.
type ChunkCandidate struct {
	Index    int
	Content  string
	Metadata Metadata
}

// EmbeddingRecord is the write-path triple for StoreEmbeddings.
type EmbeddingRecord struct {
	ChunkID string
	Vector  []float32
	Model   string
}

// ScoredChunk is one ranked search result.
type ScoredChunk struct {
	ChunkID    string
	DocumentID string
	Index      int
	Content    string
	Metadata   Metadata
	Score      float64
}

// PageBreak marks the rune offset at which a page starts in loader output.
type PageBreak struct {
	Offset int
	Page   int
}

// PageAt returns the page covering the given rune offset, or 0 when the
// source carries no page boundaries. Breaks must be sorted by offset.
func PageAt(breaks []PageBreak, offset int) int {
	page := 0
	for _, b := range breaks {
		if b.Offset > offset {
			break
		}
		page = b.Page
	}
	return page
}

// SearchOptions tune Search behavior beyond the required arguments.
type SearchOptions struct {
	// FailFast makes an empty filtered candidate set an ErrEmptyIndex
	// instead of an empty result.
	FailFast bool
}
