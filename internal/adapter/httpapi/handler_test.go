package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"retrieval-king/internal/domain"
	"retrieval-king/internal/pipeline"
	"retrieval-king/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAnswerUsecase struct{ mock.Mock }

func (m *mockAnswerUsecase) Execute(ctx context.Context, input usecase.AnswerQueryInput) (*usecase.AnswerQueryOutput, error) {
	args := m.Called(ctx, input)
	if v := args.Get(0); v != nil {
		return v.(*usecase.AnswerQueryOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAnswerUsecase) Stream(ctx context.Context, input usecase.AnswerQueryInput) (<-chan pipeline.Event, error) {
	args := m.Called(ctx, input)
	if v := args.Get(0); v != nil {
		return v.(<-chan pipeline.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockJobRepo struct{ mock.Mock }

func (m *mockJobRepo) Enqueue(ctx context.Context, job *domain.IngestJob) error {
	return m.Called(ctx, job).Error(0)
}

func (m *mockJobRepo) AcquireNextJob(ctx context.Context) (*domain.IngestJob, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*domain.IngestJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockJobRepo) UpdateStatus(ctx context.Context, jobID uuid.UUID, status string, errMsg *string) error {
	return m.Called(ctx, jobID, status, errMsg).Error(0)
}

type mockDocRepo struct{ mock.Mock }

func (m *mockDocRepo) Create(ctx context.Context, doc *domain.Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *mockDocRepo) UpdateChunkStats(ctx context.Context, docID uuid.UUID, numChunks int, numPages *int) error {
	return m.Called(ctx, docID, numChunks, numPages).Error(0)
}

func (m *mockDocRepo) GetByID(ctx context.Context, docID uuid.UUID) (*domain.Document, error) {
	args := m.Called(ctx, docID)
	if v := args.Get(0); v != nil {
		return v.(*domain.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDocRepo) List(ctx context.Context) ([]domain.Document, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]domain.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDocRepo) Delete(ctx context.Context, docID uuid.UUID) error {
	return m.Called(ctx, docID).Error(0)
}

type mockVectorStore struct{ mock.Mock }

func (m *mockVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]domain.RetrievedDocument, error) {
	args := m.Called(ctx, queryVector, topK)
	if v := args.Get(0); v != nil {
		return v.([]domain.RetrievedDocument), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVectorStore) AddChunks(ctx context.Context, chunks []domain.DocumentChunk, filename string) error {
	return m.Called(ctx, chunks, filename).Error(0)
}

func (m *mockVectorStore) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	return m.Called(ctx, documentID).Error(0)
}

func (m *mockVectorStore) CountChunks(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type passthroughTxManager struct{}

func (passthroughTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fixture() (*Handler, *mockAnswerUsecase, *mockJobRepo, *mockDocRepo, *mockVectorStore) {
	answer := &mockAnswerUsecase{}
	jobs := &mockJobRepo{}
	docs := &mockDocRepo{}
	store := &mockVectorStore{}
	h := NewHandler(answer, jobs, docs, store, passthroughTxManager{}, testLogger())
	return h, answer, jobs, docs, store
}

func jsonRequest(method, target, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func TestQuery_ReturnsAnswerEnvelope(t *testing.T) {
	h, answer, _, _, _ := fixture()

	queryID := uuid.New()
	page := 3
	answer.On("Execute", mock.Anything, usecase.AnswerQueryInput{
		Query: "what is go", TopK: 5, UseReranker: true,
	}).Return(&usecase.AnswerQueryOutput{
		QueryID:  queryID,
		Query:    "what is go",
		Response: "Go is a language [1].",
		Citations: []domain.Citation{{
			CitationID:      1,
			DocumentID:      "doc-1",
			Filename:        "go.pdf",
			ChunkID:         "chunk-1",
			Text:            "Go is a language.",
			PageNumber:      &page,
			ConfidenceScore: 0.92,
		}},
		NumContextsRetrieved: 40,
		NumContextsUsed:      1,
		ProcessingTime:       1500 * time.Millisecond,
	}, nil)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/query", `{"query":"what is go","top_k":5}`)
	require.NoError(t, h.Query(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, queryID.String(), resp["query_id"])
	assert.Equal(t, "Go is a language [1].", resp["response"])
	assert.Equal(t, float64(40), resp["num_contexts_retrieved"])
	assert.Equal(t, float64(1), resp["num_contexts_used"])
	assert.Equal(t, float64(1500), resp["processing_time_ms"])

	citations := resp["citations"].([]any)
	require.Len(t, citations, 1)
	first := citations[0].(map[string]any)
	assert.Equal(t, float64(1), first["citation_id"])
	assert.Equal(t, "go.pdf", first["filename"])
	assert.Equal(t, float64(3), first["page_number"])
}

func TestQuery_UseRerankerDefaultsTrue(t *testing.T) {
	h, answer, _, _, _ := fixture()

	answer.On("Execute", mock.Anything, mock.MatchedBy(func(input usecase.AnswerQueryInput) bool {
		return input.UseReranker
	})).Return(&usecase.AnswerQueryOutput{QueryID: uuid.New()}, nil)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/query", `{"query":"q"}`)
	require.NoError(t, h.Query(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	answer.AssertExpectations(t)
}

func TestQuery_ExplicitRerankerOff(t *testing.T) {
	h, answer, _, _, _ := fixture()

	answer.On("Execute", mock.Anything, mock.MatchedBy(func(input usecase.AnswerQueryInput) bool {
		return !input.UseReranker
	})).Return(&usecase.AnswerQueryOutput{QueryID: uuid.New()}, nil)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/query", `{"query":"q","use_reranker":false}`)
	require.NoError(t, h.Query(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	answer.AssertExpectations(t)
}

func TestQuery_EmptyQueryIsBadRequest(t *testing.T) {
	h, answer, _, _, _ := fixture()

	answer.On("Execute", mock.Anything, mock.Anything).
		Return(nil, assertableError("query must not be empty"))

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/query", `{"query":""}`)
	require.NoError(t, h.Query(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type assertableError string

func (e assertableError) Error() string { return string(e) }

func TestQueryStream_WritesSSEFrames(t *testing.T) {
	h, answer, _, _, _ := fixture()

	events := make(chan pipeline.Event, 4)
	events <- pipeline.Event{Kind: pipeline.EventKindCitations, Citations: []domain.Citation{{
		CitationID: 1, Filename: "go.txt", ChunkID: "c1", ConfidenceScore: 0.8,
	}}}
	events <- pipeline.Event{Kind: pipeline.EventKindDelta, Delta: "Go "}
	events <- pipeline.Event{Kind: pipeline.EventKindDelta, Delta: "rocks."}
	events <- pipeline.Event{Kind: pipeline.EventKindDone, Done: &pipeline.DoneEvent{ProcessingTimeMs: 42}}
	close(events)

	answer.On("Stream", mock.Anything, mock.Anything).
		Return((<-chan pipeline.Event)(events), nil)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/query/stream", `{"query":"go"}`)
	require.NoError(t, h.QueryStream(e.NewContext(req, rec)))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := parseSSE(t, rec.Body.String())
	require.Len(t, frames, 4)

	assert.Contains(t, frames[0], "citations")
	assert.Contains(t, frames[0], "query_id")
	assert.Equal(t, "Go ", frames[1]["content"])
	assert.Equal(t, "rocks.", frames[2]["content"])
	assert.Equal(t, true, frames[3]["done"])
	assert.Equal(t, float64(42), frames[3]["processing_time_ms"])
}

func TestQueryStream_ErrorEventForwarded(t *testing.T) {
	h, answer, _, _, _ := fixture()

	events := make(chan pipeline.Event, 2)
	events <- pipeline.Event{Kind: pipeline.EventKindCitations}
	events <- pipeline.Event{Kind: pipeline.EventKindError, Err: "generation failed"}
	close(events)

	answer.On("Stream", mock.Anything, mock.Anything).
		Return((<-chan pipeline.Event)(events), nil)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/query/stream", `{"query":"go"}`)
	require.NoError(t, h.QueryStream(e.NewContext(req, rec)))

	frames := parseSSE(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "generation failed", frames[1]["error"])
}

func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &frame))
		frames = append(frames, frame)
	}
	return frames
}

func TestUpload_RegistersDocumentAndEnqueuesJob(t *testing.T) {
	h, _, jobs, docs, _ := fixture()

	var enqueued *domain.IngestJob
	jobs.On("Enqueue", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			enqueued = args.Get(1).(*domain.IngestJob)
		}).Return(nil)

	var registered *domain.Document
	docs.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			registered = args.Get(1).(*domain.Document)
		}).Return(nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()

	require.NoError(t, h.Upload(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, enqueued)
	assert.Equal(t, "report.pdf", enqueued.Filename)
	assert.Equal(t, "new", enqueued.Status)
	assert.Equal(t, []byte("%PDF-1.4 fake"), enqueued.Data)

	// The registry row exists before the worker runs, with stats still zero.
	require.NotNil(t, registered)
	assert.Equal(t, enqueued.DocumentID, registered.ID)
	assert.Equal(t, "report.pdf", registered.Filename)
	assert.Equal(t, "pdf", registered.FileType)
	assert.Equal(t, int64(len("%PDF-1.4 fake")), registered.FileSize)
	assert.Zero(t, registered.NumChunks)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, enqueued.DocumentID.String(), resp.DocumentID)
	assert.Equal(t, "processing", resp.Status)
}

func TestUpload_MissingFileIsBadRequest(t *testing.T) {
	h, _, _, _, _ := fixture()

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/upload", `{}`)
	require.NoError(t, h.Upload(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDocuments_ReturnsRegistry(t *testing.T) {
	h, _, _, docs, _ := fixture()

	docs.On("List", mock.Anything).Return([]domain.Document{{
		ID:         uuid.New(),
		Filename:   "go.txt",
		FileType:   "txt",
		FileSize:   120,
		NumChunks:  4,
		UploadedAt: time.Now(),
	}}, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.ListDocuments(e.NewContext(req, rec)))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["total_count"])
	list := resp["documents"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "go.txt", list[0].(map[string]any)["filename"])
}

func TestDeleteDocument_RemovesChunksAndRegistryRow(t *testing.T) {
	h, _, _, docs, store := fixture()

	docID := uuid.New()
	docs.On("GetByID", mock.Anything, docID).
		Return(&domain.Document{ID: docID, Filename: "go.txt"}, nil)
	store.On("DeleteDocument", mock.Anything, docID).Return(nil)
	docs.On("Delete", mock.Anything, docID).Return(nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/documents/"+docID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(docID.String())

	require.NoError(t, h.DeleteDocument(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	store.AssertExpectations(t)
	docs.AssertExpectations(t)
}

func TestDeleteDocument_UnknownIDIs404(t *testing.T) {
	h, _, _, docs, _ := fixture()

	docID := uuid.New()
	docs.On("GetByID", mock.Anything, docID).Return(nil, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/documents/"+docID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(docID.String())

	require.NoError(t, h.DeleteDocument(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentStats_CountsDocsAndChunks(t *testing.T) {
	h, _, _, docs, store := fixture()

	docs.On("List", mock.Anything).Return([]domain.Document{{}, {}}, nil)
	store.On("CountChunks", mock.Anything).Return(int64(37), nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/documents/stats", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.DocumentStats(e.NewContext(req, rec)))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["total_documents"])
	assert.Equal(t, float64(37), resp["total_chunks"])
}
