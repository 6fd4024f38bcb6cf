package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IngestJob is a queued unit of document-processing work. Payload carries the
// raw upload; the worker owns extraction, chunking, and embedding.
type IngestJob struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	Filename    string
	ContentType string
	Data        []byte
	Status      string // "new", "processing", "completed", "failed"
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentRepository defines the operations for the document registry.
type DocumentRepository interface {
	// Create inserts a registry row.
	Create(ctx context.Context, doc *Document) error

	// UpdateChunkStats records chunk/page counts after ingest completes.
	UpdateChunkStats(ctx context.Context, docID uuid.UUID, numChunks int, numPages *int) error

	// GetByID retrieves a document. Returns nil, nil if not found.
	GetByID(ctx context.Context, docID uuid.UUID) (*Document, error)

	// List returns all registered documents, newest first.
	List(ctx context.Context) ([]Document, error)

	// Delete removes the registry row.
	Delete(ctx context.Context, docID uuid.UUID) error
}

// IngestJobRepository defines the job-queue operations for async ingest.
type IngestJobRepository interface {
	// Enqueue inserts a new job.
	Enqueue(ctx context.Context, job *IngestJob) error

	// AcquireNextJob claims the oldest "new" job, marking it "processing".
	// Returns nil, nil when the queue is empty.
	AcquireNextJob(ctx context.Context) (*IngestJob, error)

	// UpdateStatus finalizes a job.
	UpdateStatus(ctx context.Context, jobID uuid.UUID, status string, errMsg *string) error
}

// TransactionManager defines the interface for handling database transactions.
type TransactionManager interface {
	// RunInTx executes the given function within a transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
