package repository

import (
	"context"
	"fmt"

	"retrieval-king/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type chunkRepository struct {
	pool *pgxpool.Pool
}

// NewChunkRepository creates a pgvector-backed chunk store. Filename is
// denormalized onto chunk rows so search never needs the registry table.
func NewChunkRepository(pool *pgxpool.Pool) domain.VectorStore {
	return &chunkRepository{pool: pool}
}

type dbExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *chunkRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := ExtractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

// Search runs a cosine nearest-neighbour query. The <=> operator returns
// cosine distance, so similarity is 1 - distance.
func (r *chunkRepository) Search(ctx context.Context, queryVector []float32, topK int) ([]domain.RetrievedDocument, error) {
	query := `
		SELECT id, document_id, filename, ordinal, content, page_number,
		       1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := r.getExecutor(ctx).Query(ctx, query, pgvector.NewVector(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var docs []domain.RetrievedDocument
	for rows.Next() {
		var (
			id         uuid.UUID
			documentID uuid.UUID
			filename   string
			ordinal    int
			content    string
			pageNumber *int
			similarity float32
		)
		if err := rows.Scan(&id, &documentID, &filename, &ordinal, &content, &pageNumber, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		docs = append(docs, domain.RetrievedDocument{
			Text: content,
			Metadata: domain.ChunkMetadata{
				DocumentID: documentID.String(),
				Filename:   filename,
				ChunkID:    id.String(),
				ChunkIndex: ordinal,
				PageNumber: pageNumber,
			},
			SimilarityScore: similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return docs, nil
}

func (r *chunkRepository) AddChunks(ctx context.Context, chunks []domain.DocumentChunk, filename string) error {
	if len(chunks) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(chunks))
	for i, chunk := range chunks {
		rows[i] = []interface{}{
			chunk.ID,
			chunk.DocumentID,
			filename,
			chunk.Ordinal,
			chunk.Content,
			chunk.PageNumber,
			chunk.Embedding,
			chunk.CreatedAt,
		}
	}

	_, err := r.getExecutor(ctx).CopyFrom(
		ctx,
		pgx.Identifier{"document_chunks"},
		[]string{"id", "document_id", "filename", "ordinal", "content", "page_number", "embedding", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert chunks: %w", err)
	}

	return nil
}

func (r *chunkRepository) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.getExecutor(ctx).Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (r *chunkRepository) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := r.getExecutor(ctx).QueryRow(ctx,
		`SELECT count(*) FROM document_chunks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
