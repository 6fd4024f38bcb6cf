package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"retrieval-king/internal/domain"
	"retrieval-king/internal/pipeline"
	"retrieval-king/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Handler owns the HTTP surface: query answering (plain and streamed),
// document upload, and the registry endpoints.
type Handler struct {
	answerUsecase usecase.AnswerQueryUsecase
	jobRepo       domain.IngestJobRepository
	docRepo       domain.DocumentRepository
	store         domain.VectorStore
	txManager     domain.TransactionManager
	logger        *slog.Logger
}

func NewHandler(
	answerUsecase usecase.AnswerQueryUsecase,
	jobRepo domain.IngestJobRepository,
	docRepo domain.DocumentRepository,
	store domain.VectorStore,
	txManager domain.TransactionManager,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		answerUsecase: answerUsecase,
		jobRepo:       jobRepo,
		docRepo:       docRepo,
		store:         store,
		txManager:     txManager,
		logger:        logger,
	}
}

// RegisterRoutes attaches every endpoint to the echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/readyz", h.Ready)
	e.POST("/query", h.Query)
	e.POST("/query/stream", h.QueryStream)
	e.POST("/upload", h.Upload)
	e.GET("/documents", h.ListDocuments)
	e.GET("/documents/stats", h.DocumentStats)
	e.DELETE("/documents/:id", h.DeleteDocument)
}

// QueryRequest is the /query request body. UseReranker defaults to true when
// omitted.
type QueryRequest struct {
	Query       string `json:"query"`
	TopK        int    `json:"top_k"`
	UseReranker *bool  `json:"use_reranker"`
}

// CitationJSON is the wire form of a citation.
type CitationJSON struct {
	CitationID      int     `json:"citation_id"`
	DocumentID      string  `json:"document_id"`
	Filename        string  `json:"filename"`
	ChunkID         string  `json:"chunk_id"`
	Text            string  `json:"text"`
	PageNumber      *int    `json:"page_number"`
	ConfidenceScore float32 `json:"confidence_score"`
}

// QueryResponse is the /query response body.
type QueryResponse struct {
	QueryID              string         `json:"query_id"`
	Query                string         `json:"query"`
	Response             string         `json:"response"`
	Citations            []CitationJSON `json:"citations"`
	NumContextsRetrieved int            `json:"num_contexts_retrieved"`
	NumContextsUsed      int            `json:"num_contexts_used"`
	ProcessingTimeMs     int64          `json:"processing_time_ms"`
}

func toCitationJSON(citations []domain.Citation) []CitationJSON {
	out := make([]CitationJSON, 0, len(citations))
	for _, c := range citations {
		out = append(out, CitationJSON{
			CitationID:      c.CitationID,
			DocumentID:      c.DocumentID,
			Filename:        c.Filename,
			ChunkID:         c.ChunkID,
			Text:            c.Text,
			PageNumber:      c.PageNumber,
			ConfidenceScore: c.ConfidenceScore,
		})
	}
	return out
}

func (h *Handler) bindQuery(ctx echo.Context) (usecase.AnswerQueryInput, error) {
	var req QueryRequest
	if err := ctx.Bind(&req); err != nil {
		return usecase.AnswerQueryInput{}, err
	}
	useReranker := true
	if req.UseReranker != nil {
		useReranker = *req.UseReranker
	}
	return usecase.AnswerQueryInput{
		Query:       req.Query,
		TopK:        req.TopK,
		UseReranker: useReranker,
	}, nil
}

// Query answers a question in one shot.
// (POST /query)
func (h *Handler) Query(ctx echo.Context) error {
	input, err := h.bindQuery(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	output, err := h.answerUsecase.Execute(ctx.Request().Context(), input)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusOK, QueryResponse{
		QueryID:              output.QueryID.String(),
		Query:                output.Query,
		Response:             output.Response,
		Citations:            toCitationJSON(output.Citations),
		NumContextsRetrieved: output.NumContextsRetrieved,
		NumContextsUsed:      output.NumContextsUsed,
		ProcessingTimeMs:     output.ProcessingTime.Milliseconds(),
	})
}

// QueryStream answers a question over server-sent events: a citations event
// first, response fragments as they are produced, then a done marker.
// (POST /query/stream)
func (h *Handler) QueryStream(ctx echo.Context) error {
	input, err := h.bindQuery(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	events, err := h.answerUsecase.Stream(ctx.Request().Context(), input)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	c := ctx.Response()
	c.Header().Set("Content-Type", "text/event-stream")
	c.Header().Set("Cache-Control", "no-cache")
	c.Header().Set("Connection", "keep-alive")
	c.WriteHeader(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	if !canFlush {
		h.logger.Error("response_writer_cannot_flush")
		return ctx.String(http.StatusInternalServerError, "streaming not supported")
	}

	queryID := uuid.New().String()
	for ev := range events {
		var payload any
		switch ev.Kind {
		case pipeline.EventKindCitations:
			payload = map[string]any{
				"query_id":  queryID,
				"citations": toCitationJSON(ev.Citations),
			}
		case pipeline.EventKindDelta:
			payload = map[string]string{"content": ev.Delta}
		case pipeline.EventKindDone:
			payload = map[string]any{
				"done":               true,
				"processing_time_ms": ev.Done.ProcessingTimeMs,
			}
		case pipeline.EventKindError:
			payload = map[string]string{"error": ev.Err}
		default:
			continue
		}

		data, err := json.Marshal(payload)
		if err != nil {
			h.logger.Error("sse_marshal_failed", slog.String("error", err.Error()))
			continue
		}
		if _, err := c.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			// Client went away; the pipeline stops via request context.
			return nil
		}
		flusher.Flush()
	}

	return nil
}

// UploadResponse acknowledges an accepted upload. Chunking happens
// asynchronously, so num_chunks is reported by the documents endpoints later.
type UploadResponse struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// Upload accepts a multipart file and queues it for ingestion.
// (POST /upload)
func (h *Handler) Upload(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "missing file"})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable file"})
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(src)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable file"})
	}
	if len(data) == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "empty file"})
	}

	now := time.Now()
	job := &domain.IngestJob{
		ID:          uuid.New(),
		DocumentID:  uuid.New(),
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
		Status:      "new",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Register the document up front with zero chunk stats; the worker fills
	// them in once ingestion completes. Row and job commit together.
	doc := &domain.Document{
		ID:         job.DocumentID,
		Filename:   job.Filename,
		FileType:   fileType(job.Filename, job.ContentType),
		FileSize:   int64(len(data)),
		UploadedAt: now,
	}
	err = h.txManager.RunInTx(ctx.Request().Context(), func(txCtx context.Context) error {
		if err := h.docRepo.Create(txCtx, doc); err != nil {
			return err
		}
		return h.jobRepo.Enqueue(txCtx, job)
	})
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	h.logger.Info("upload_accepted",
		slog.String("document_id", job.DocumentID.String()),
		slog.String("filename", job.Filename),
		slog.Int("size_bytes", len(data)))

	return ctx.JSON(http.StatusAccepted, UploadResponse{
		DocumentID: job.DocumentID.String(),
		Filename:   job.Filename,
		Status:     "processing",
		Message:    "Document queued for processing",
	})
}

func fileType(filename, contentType string) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); ext != "" {
		return ext
	}
	return contentType
}

// DocumentJSON is the wire form of a registry row.
type DocumentJSON struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	FileSize   int64  `json:"file_size"`
	NumChunks  int    `json:"num_chunks"`
	NumPages   *int   `json:"num_pages"`
	UploadedAt string `json:"uploaded_at"`
}

// ListDocuments returns every registered document, newest first.
// (GET /documents)
func (h *Handler) ListDocuments(ctx echo.Context) error {
	docs, err := h.docRepo.List(ctx.Request().Context())
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := make([]DocumentJSON, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentJSON{
			DocumentID: d.ID.String(),
			Filename:   d.Filename,
			FileType:   d.FileType,
			FileSize:   d.FileSize,
			NumChunks:  d.NumChunks,
			NumPages:   d.NumPages,
			UploadedAt: d.UploadedAt.UTC().Format(time.RFC3339),
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"documents":   out,
		"total_count": len(out),
	})
}

// DocumentStats reports corpus-level counters.
// (GET /documents/stats)
func (h *Handler) DocumentStats(ctx echo.Context) error {
	docs, err := h.docRepo.List(ctx.Request().Context())
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	chunks, err := h.store.CountChunks(ctx.Request().Context())
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"total_documents": len(docs),
		"total_chunks":    chunks,
	})
}

// DeleteDocument removes a document and its chunks in one transaction.
// (DELETE /documents/:id)
func (h *Handler) DeleteDocument(ctx echo.Context) error {
	docID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid document id"})
	}

	doc, err := h.docRepo.GetByID(ctx.Request().Context(), docID)
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if doc == nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "document not found"})
	}

	err = h.txManager.RunInTx(ctx.Request().Context(), func(txCtx context.Context) error {
		if err := h.store.DeleteDocument(txCtx, docID); err != nil {
			return err
		}
		return h.docRepo.Delete(txCtx, docID)
	})
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	h.logger.Info("document_deleted",
		slog.String("document_id", docID.String()),
		slog.String("filename", doc.Filename))

	return ctx.JSON(http.StatusOK, map[string]string{
		"document_id": docID.String(),
		"status":      "deleted",
	})
}

// Health is the liveness probe.
// (GET /health)
func (h *Handler) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ready is the readiness probe; it requires a live database.
// (GET /readyz)
func (h *Handler) Ready(ctx echo.Context) error {
	if _, err := h.store.CountChunks(ctx.Request().Context()); err != nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
