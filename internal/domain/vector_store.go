package domain

import (
	"context"

	"github.com/google/uuid"
)

// VectorStore defines the operations the pipeline and the ingest path need
// from the persistent vector index.
type VectorStore interface {
	// Search returns the topK nearest chunks by cosine similarity, best first.
	Search(ctx context.Context, queryVector []float32, topK int) ([]RetrievedDocument, error)

	// AddChunks inserts chunks with their embeddings.
	AddChunks(ctx context.Context, chunks []DocumentChunk, filename string) error

	// DeleteDocument removes every chunk belonging to the document.
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error

	// CountChunks reports the total number of indexed chunks.
	CountChunks(ctx context.Context) (int64, error)
}
