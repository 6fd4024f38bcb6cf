package pipeline

import (
	"context"
	"log/slog"
	"time"

	"retrieval-king/internal/domain"
)

// Config holds the executor's tunable parameters.
type Config struct {
	// RetrievalTopK is the per-query (and per-variant) vector search limit.
	RetrievalTopK int
	// RerankTopK is the hard cap on FinalDocuments; a request TopK may narrow
	// it but never exceed it.
	RerankTopK int
	// MaxVariantWorkers bounds concurrent embed+search tasks in parallel mode.
	MaxVariantWorkers int
	// RerankTimeout bounds the cross-encoder call.
	RerankTimeout time.Duration
}

// Executor sequences the query pipeline:
//
//	classifying -> rewriting? -> retrieving(single|parallel) -> reranking -> generating -> done
//
// Every stage absorbs its own failures into the State; Run never fails and
// always returns a fully-formed State.
type Executor struct {
	encoder   domain.VectorEncoder
	store     domain.VectorStore
	reranker  domain.Reranker
	generator domain.Generator
	cfg       Config
	logger    *slog.Logger
}

// NewExecutor wires the pipeline's collaborators. reranker may be nil, in
// which case the reranking stage always falls back to truncation.
func NewExecutor(
	encoder domain.VectorEncoder,
	store domain.VectorStore,
	reranker domain.Reranker,
	generator domain.Generator,
	cfg Config,
	logger *slog.Logger,
) *Executor {
	if cfg.RetrievalTopK <= 0 {
		cfg.RetrievalTopK = 100
	}
	if cfg.RerankTopK <= 0 {
		cfg.RerankTopK = 10
	}
	if cfg.MaxVariantWorkers <= 0 {
		cfg.MaxVariantWorkers = 4
	}
	if cfg.RerankTimeout <= 0 {
		cfg.RerankTimeout = 15 * time.Second
	}
	return &Executor{
		encoder:   encoder,
		store:     store,
		reranker:  reranker,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes the full pipeline for one query and stamps the total elapsed
// time on the returned State.
func (e *Executor) Run(ctx context.Context, query string, topK int, useReranker bool) *State {
	st := &State{
		Query:       query,
		TopK:        topK,
		UseReranker: useReranker,
	}

	start := time.Now()
	for step := StepClassifying; step != StepDone; step = Next(step, st) {
		e.apply(ctx, step, st)
	}
	st.ProcessingTime = time.Since(start)

	e.logger.Info("pipeline_completed",
		slog.Int("contexts_retrieved", st.NumContextsRetrieved),
		slog.Int("contexts_used", st.NumContextsUsed),
		slog.Int("citation_count", len(st.Citations)),
		slog.Int64("duration_ms", st.ProcessingTime.Milliseconds()))

	return st
}

func (e *Executor) apply(ctx context.Context, step Step, st *State) {
	e.logger.Debug("pipeline_step", slog.String("step", step.String()))
	switch step {
	case StepClassifying:
		e.classify(ctx, st)
	case StepRewriting:
		e.rewrite(ctx, st)
	case StepRetrievingSingle:
		e.retrieveSingle(ctx, st)
	case StepRetrievingParallel:
		e.retrieveParallel(ctx, st)
	case StepReranking:
		e.rerank(ctx, st)
	case StepGenerating:
		e.generate(ctx, st)
	}
}

// rerankTopK returns the effective FinalDocuments cap: the request's TopK can
// narrow the configured cap but never raise it.
func (e *Executor) rerankTopK(st *State) int {
	if st.TopK > 0 && st.TopK < e.cfg.RerankTopK {
		return st.TopK
	}
	return e.cfg.RerankTopK
}
