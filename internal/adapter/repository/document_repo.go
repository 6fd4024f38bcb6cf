package repository

import (
	"context"
	"errors"
	"fmt"

	"retrieval-king/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type documentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository creates the registry repository.
func NewDocumentRepository(pool *pgxpool.Pool) domain.DocumentRepository {
	return &documentRepository{pool: pool}
}

func (r *documentRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := ExtractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (id, filename, file_type, file_size, num_chunks, num_pages, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.getExecutor(ctx).Exec(ctx, query,
		doc.ID, doc.Filename, doc.FileType, doc.FileSize, doc.NumChunks, doc.NumPages, doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (r *documentRepository) UpdateChunkStats(ctx context.Context, docID uuid.UUID, numChunks int, numPages *int) error {
	query := `
		UPDATE documents
		SET num_chunks = $2, num_pages = $3
		WHERE id = $1
	`
	_, err := r.getExecutor(ctx).Exec(ctx, query, docID, numChunks, numPages)
	if err != nil {
		return fmt.Errorf("failed to update chunk stats: %w", err)
	}
	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, docID uuid.UUID) (*domain.Document, error) {
	query := `
		SELECT id, filename, file_type, file_size, num_chunks, num_pages, uploaded_at
		FROM documents
		WHERE id = $1
	`
	var doc domain.Document
	err := r.getExecutor(ctx).QueryRow(ctx, query, docID).Scan(
		&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.NumChunks, &doc.NumPages, &doc.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (r *documentRepository) List(ctx context.Context) ([]domain.Document, error) {
	query := `
		SELECT id, filename, file_type, file_size, num_chunks, num_pages, uploaded_at
		FROM documents
		ORDER BY uploaded_at DESC
	`
	rows, err := r.getExecutor(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.NumChunks, &doc.NumPages, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return docs, nil
}

func (r *documentRepository) Delete(ctx context.Context, docID uuid.UUID) error {
	_, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}
