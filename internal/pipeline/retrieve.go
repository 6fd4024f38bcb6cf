package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"retrieval-king/internal/domain"
)

// retrieveSingle embeds the original query and fetches its nearest neighbors.
// Embedding or lookup failure degrades to zero contexts; the pipeline
// continues either way.
func (e *Executor) retrieveSingle(ctx context.Context, st *State) {
	docs, err := e.search(ctx, st.Query)
	if err != nil {
		e.logger.Warn("retrieval_failed",
			slog.String("error", err.Error()))
		docs = nil
	}

	st.RetrievedDocuments = docs
	st.NumContextsRetrieved = len(docs)
	e.logger.Info("retrieval_completed",
		slog.Int("document_count", len(docs)))
}

// retrieveParallel runs an independent embed+search per variant on a bounded
// worker pool, then merges results in variant generation order, deduplicating
// by chunk ID with the earliest variant's hit winning. Each worker writes only
// its own slot, so completion order cannot leak into output order. A failed
// variant contributes nothing and does not affect the others.
func (e *Executor) retrieveParallel(ctx context.Context, st *State) {
	slots := make([][]domain.RetrievedDocument, len(st.QueryVariants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxVariantWorkers)
	for i, variant := range st.QueryVariants {
		g.Go(func() error {
			docs, err := e.search(gctx, variant)
			if err != nil {
				e.logger.Warn("variant_retrieval_failed",
					slog.Int("variant_index", i),
					slog.String("variant", variant),
					slog.String("error", err.Error()))
				return nil // partial-failure isolation
			}
			slots[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var merged []domain.RetrievedDocument
	for _, docs := range slots {
		for _, doc := range docs {
			if seen[doc.Metadata.ChunkID] {
				continue
			}
			seen[doc.Metadata.ChunkID] = true
			merged = append(merged, doc)
		}
	}

	st.RetrievedDocuments = merged
	st.NumContextsRetrieved = len(merged)
	e.logger.Info("parallel_retrieval_completed",
		slog.Int("variant_count", len(st.QueryVariants)),
		slog.Int("unique_document_count", len(merged)))
}

func (e *Executor) search(ctx context.Context, query string) ([]domain.RetrievedDocument, error) {
	embeddings, err := e.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, errNoEmbedding
	}
	return e.store.Search(ctx, embeddings[0], e.cfg.RetrievalTopK)
}
