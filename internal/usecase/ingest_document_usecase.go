package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"retrieval-king/internal/domain"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/time/rate"
)

const defaultEmbedBatchSize = 32

// IngestDocumentInput is one uploaded file bound for the index.
type IngestDocumentInput struct {
	DocumentID  uuid.UUID
	Filename    string
	ContentType string
	Data        []byte
}

// IngestDocumentOutput reports what the ingest produced.
type IngestDocumentOutput struct {
	DocumentID uuid.UUID
	NumChunks  int
	NumPages   *int
}

// IngestDocumentUsecase turns an uploaded file into indexed chunks: extract
// text, chunk it, embed the chunks, and commit chunks plus registry chunk
// stats in one transaction.
type IngestDocumentUsecase interface {
	Execute(ctx context.Context, input IngestDocumentInput) (*IngestDocumentOutput, error)
}

type ingestDocumentUsecase struct {
	extractor      domain.TextExtractor
	chunker        domain.Chunker
	encoder        domain.VectorEncoder
	store          domain.VectorStore
	docRepo        domain.DocumentRepository
	txManager      domain.TransactionManager
	limiter        *rate.Limiter
	embedBatchSize int
	logger         *slog.Logger
}

// NewIngestDocumentUsecase wires the ingest path. limiter throttles calls to
// the embedding service; pass nil to embed unthrottled.
func NewIngestDocumentUsecase(
	extractor domain.TextExtractor,
	chunker domain.Chunker,
	encoder domain.VectorEncoder,
	store domain.VectorStore,
	docRepo domain.DocumentRepository,
	txManager domain.TransactionManager,
	limiter *rate.Limiter,
	logger *slog.Logger,
) IngestDocumentUsecase {
	return &ingestDocumentUsecase{
		extractor:      extractor,
		chunker:        chunker,
		encoder:        encoder,
		store:          store,
		docRepo:        docRepo,
		txManager:      txManager,
		limiter:        limiter,
		embedBatchSize: defaultEmbedBatchSize,
		logger:         logger,
	}
}

func (u *ingestDocumentUsecase) Execute(ctx context.Context, input IngestDocumentInput) (*IngestDocumentOutput, error) {
	startTime := time.Now()

	text, pages, err := u.extractText(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("text extraction failed: %w", err)
	}

	chunks, numPages, err := u.chunkDocument(text, pages)
	if err != nil {
		return nil, fmt.Errorf("chunking failed: %w", err)
	}

	docChunks, err := u.embedChunks(ctx, input.DocumentID, chunks)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	// The registry row was created at upload time with zero stats; fill in
	// the counts in the same transaction that commits the chunks.
	err = u.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := u.store.AddChunks(txCtx, docChunks, input.Filename); err != nil {
			return err
		}
		return u.docRepo.UpdateChunkStats(txCtx, input.DocumentID, len(docChunks), numPages)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist document: %w", err)
	}

	u.logger.Info("document_ingested",
		slog.String("document_id", input.DocumentID.String()),
		slog.String("filename", input.Filename),
		slog.Int("chunk_count", len(docChunks)),
		slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))

	return &IngestDocumentOutput{
		DocumentID: input.DocumentID,
		NumChunks:  len(docChunks),
		NumPages:   numPages,
	}, nil
}

// extractText returns the document text, and per-page text when the format
// has page boundaries. Plain-text formats bypass the extractor.
func (u *ingestDocumentUsecase) extractText(ctx context.Context, input IngestDocumentInput) (string, []domain.ExtractedPage, error) {
	if isPlainText(input.Filename, input.ContentType) {
		return string(input.Data), nil, nil
	}

	result, err := u.extractor.Extract(ctx, input.Data, input.ContentType)
	if err != nil {
		return "", nil, err
	}
	return result.Text, result.Pages, nil
}

// chunkDocument chunks page by page when page boundaries are known, so every
// chunk carries its page number. Ordinals stay contiguous across pages.
func (u *ingestDocumentUsecase) chunkDocument(text string, pages []domain.ExtractedPage) ([]domain.Chunk, *int, error) {
	if len(pages) == 0 {
		chunks, err := u.chunker.Chunk(text)
		return chunks, nil, err
	}

	var all []domain.Chunk
	for _, page := range pages {
		pageChunks, err := u.chunker.Chunk(page.Text)
		if err != nil {
			return nil, nil, err
		}
		pageNum := page.PageNumber
		for _, c := range pageChunks {
			c.Ordinal = len(all)
			c.PageNumber = &pageNum
			all = append(all, c)
		}
	}
	numPages := len(pages)
	return all, &numPages, nil
}

// embedChunks encodes chunk contents in batches, honoring the rate limiter
// between batches.
func (u *ingestDocumentUsecase) embedChunks(ctx context.Context, documentID uuid.UUID, chunks []domain.Chunk) ([]domain.DocumentChunk, error) {
	docChunks := make([]domain.DocumentChunk, 0, len(chunks))
	now := time.Now()

	for start := 0; start < len(chunks); start += u.embedBatchSize {
		end := start + u.embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if u.limiter != nil {
			if err := u.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := u.encoder.Encode(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("encoder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i, c := range batch {
			docChunks = append(docChunks, domain.DocumentChunk{
				ID:         uuid.New(),
				DocumentID: documentID,
				Ordinal:    c.Ordinal,
				Content:    c.Content,
				PageNumber: c.PageNumber,
				Embedding:  pgvector.NewVector(vectors[i]),
				CreatedAt:  now,
			})
		}
	}
	return docChunks, nil
}

func isPlainText(filename, contentType string) bool {
	switch contentType {
	case "text/plain", "text/markdown":
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}
