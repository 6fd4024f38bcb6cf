package worker

import (
	"context"
	"log/slog"
	"time"

	"retrieval-king/internal/domain"
	"retrieval-king/internal/usecase"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	jobTimeout          = 60 * time.Second
	initialBackoff      = 1 * time.Second
	maxBackoff          = 5 * time.Minute
)

// IngestWorker drains the ingest job queue. One job at a time; consecutive
// failures stretch the poll interval exponentially so a dead embedding
// service is not hammered.
type IngestWorker struct {
	jobRepo       domain.IngestJobRepository
	ingestUsecase usecase.IngestDocumentUsecase
	logger        *slog.Logger
	stopChan      chan struct{}
	backoff       time.Duration
}

func NewIngestWorker(
	jobRepo domain.IngestJobRepository,
	ingestUsecase usecase.IngestDocumentUsecase,
	logger *slog.Logger,
) *IngestWorker {
	return &IngestWorker{
		jobRepo:       jobRepo,
		ingestUsecase: ingestUsecase,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

func (w *IngestWorker) Start() {
	w.logger.Info("ingest_worker_started")
	go w.run()
}

func (w *IngestWorker) Stop() {
	w.logger.Info("ingest_worker_stopping")
	close(w.stopChan)
}

func (w *IngestWorker) run() {
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processNextJob()
			if w.backoff > 0 {
				ticker.Reset(w.backoff)
			} else {
				ticker.Reset(defaultPollInterval)
			}
		}
	}
}

func (w *IngestWorker) processNextJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	job, err := w.jobRepo.AcquireNextJob(ctx)
	if err != nil {
		w.logger.Error("job_acquisition_failed", slog.String("error", err.Error()))
		return
	}
	if job == nil {
		return // queue empty
	}

	w.logger.Info("ingest_job_started",
		slog.String("job_id", job.ID.String()),
		slog.String("filename", job.Filename))

	_, processErr := w.ingestUsecase.Execute(ctx, usecase.IngestDocumentInput{
		DocumentID:  job.DocumentID,
		Filename:    job.Filename,
		ContentType: job.ContentType,
		Data:        job.Data,
	})

	status := "completed"
	var errMsg *string
	if processErr != nil {
		status = "failed"
		msg := processErr.Error()
		errMsg = &msg
		w.backoff = w.nextBackoff(w.backoff)
		w.logger.Warn("ingest_job_failed",
			slog.String("job_id", job.ID.String()),
			slog.Duration("backoff", w.backoff),
			slog.String("error", processErr.Error()))
	} else {
		w.backoff = 0
		w.logger.Info("ingest_job_completed", slog.String("job_id", job.ID.String()))
	}

	if err := w.jobRepo.UpdateStatus(ctx, job.ID, status, errMsg); err != nil {
		w.logger.Error("job_status_update_failed",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}
}

func (w *IngestWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
