package di

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"retrieval-king/internal/adapter/embedding"
	"retrieval-king/internal/adapter/httpapi"
	"retrieval-king/internal/adapter/llm"
	"retrieval-king/internal/adapter/ocr"
	"retrieval-king/internal/adapter/rerank"
	"retrieval-king/internal/adapter/repository"
	"retrieval-king/internal/domain"
	"retrieval-king/internal/infra/config"
	"retrieval-king/internal/infra/httpclient"
	"retrieval-king/internal/pipeline"
	"retrieval-king/internal/usecase"
	"retrieval-king/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Repositories
	Store   domain.VectorStore
	DocRepo domain.DocumentRepository
	JobRepo domain.IngestJobRepository

	// Usecases
	AnswerUsecase usecase.AnswerQueryUsecase
	IngestUsecase usecase.IngestDocumentUsecase

	// Worker
	Worker *worker.IngestWorker

	// HTTP surface
	Handler *httpapi.Handler
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	// Repositories
	store := repository.NewChunkRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	jobRepo := repository.NewIngestJobRepository(pool)
	txManager := repository.NewPostgresTransactionManager(pool)

	// Shared HTTP clients with connection pooling
	llmHTTP := httpclient.NewPooledClient(cfg.LLMTimeout)
	embedHTTP := httpclient.NewPooledClient(cfg.EmbeddingTimeout)
	rerankHTTP := httpclient.NewPooledClient(cfg.RerankTimeout)
	ocrHTTP := httpclient.NewPooledClient(cfg.OCRTimeout)

	// External clients
	generator := llm.NewOpenAIGenerator(
		cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.RewriterModel, cfg.GeneratorModel,
		cfg.LLMTimeout, log, llmHTTP,
	)
	encoder := embedding.NewOpenAIEmbedder(
		cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel,
		cfg.EmbeddingTimeout, embedHTTP,
	)
	reranker := rerank.NewRerankerClient(
		cfg.RerankURL, cfg.RerankModel, cfg.RerankTimeout, log, rerankHTTP,
	)
	extractor := ocr.NewOCRClient(cfg.OCRURL, cfg.OCRTimeout, log, ocrHTTP)

	// Query pipeline
	executor := pipeline.NewExecutor(encoder, store, reranker, generator, pipeline.Config{
		RetrievalTopK:     cfg.RetrievalTopK,
		RerankTopK:        cfg.RerankTopK,
		MaxVariantWorkers: cfg.MaxVariantWorkers,
		RerankTimeout:     cfg.RerankTimeout,
	}, log)

	answerUsecase := usecase.NewAnswerQueryUsecase(executor, cfg.CacheSize, cfg.CacheTTL, log)

	// Ingest path
	chunker := domain.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	var limiter *rate.Limiter
	if cfg.EmbedRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRateLimit), 1)
	}
	ingestUsecase := usecase.NewIngestDocumentUsecase(
		extractor, chunker, encoder, store, docRepo, txManager, limiter, log,
	)

	ingestWorker := worker.NewIngestWorker(jobRepo, ingestUsecase, log)

	handler := httpapi.NewHandler(answerUsecase, jobRepo, docRepo, store, txManager, log)

	return &ApplicationComponents{
		Store:         store,
		DocRepo:       docRepo,
		JobRepo:       jobRepo,
		AnswerUsecase: answerUsecase,
		IngestUsecase: ingestUsecase,
		Worker:        ingestWorker,
		Handler:       handler,
	}
}
