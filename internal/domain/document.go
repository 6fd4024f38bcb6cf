package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ChunkMetadata identifies the origin of a retrieved chunk.
type ChunkMetadata struct {
	DocumentID string
	Filename   string
	ChunkID    string
	ChunkIndex int
	PageNumber *int
}

// RetrievedDocument is a single vector-search hit. SimilarityScore is
// cosine-derived (1 - distance, so it lives in [-1, 1]). RerankScore is set
// only after a successful cross-encoder pass.
type RetrievedDocument struct {
	Text            string
	Metadata        ChunkMetadata
	SimilarityScore float32
	RerankScore     *float32
}

// Confidence returns the rerank score when present, otherwise the similarity
// score. A zero-value document reports 0.
func (d RetrievedDocument) Confidence() float32 {
	if d.RerankScore != nil {
		return *d.RerankScore
	}
	return d.SimilarityScore
}

// Citation binds a span of generated prose to the chunk that supports it.
// CitationID is 1-based and mirrors the bracketed context index handed to the
// generator, so inline [n] references in the answer stay valid.
type Citation struct {
	CitationID      int
	DocumentID      string
	Filename        string
	ChunkID         string
	Text            string
	PageNumber      *int
	ConfidenceScore float32
}

// Document is a registry row for an ingested file.
type Document struct {
	ID         uuid.UUID
	Filename   string
	FileType   string
	FileSize   int64
	NumChunks  int
	NumPages   *int
	UploadedAt time.Time
}

// DocumentChunk is a persistable chunk with its embedding.
type DocumentChunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Ordinal    int
	Content    string
	PageNumber *int
	Embedding  pgvector.Vector
	CreatedAt  time.Time
}
