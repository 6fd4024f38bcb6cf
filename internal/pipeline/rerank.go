package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"retrieval-king/internal/domain"
)

var errNoEmbedding = errors.New("no embedding returned for query")

type scoredDocument struct {
	doc    domain.RetrievedDocument
	scored bool
	score  float32
}

// rerank reorders the retrieved candidates with the cross-encoder and keeps
// the top-K. When reranking is disabled, yields nothing, or fails, the
// fallback is deterministic: the first top-K candidates in similarity order,
// rerank scores left unset.
func (e *Executor) rerank(ctx context.Context, st *State) {
	limit := e.rerankTopK(st)

	if !st.UseReranker || e.reranker == nil || len(st.RetrievedDocuments) == 0 {
		e.truncate(st, limit)
		return
	}

	texts := make([]string, len(st.RetrievedDocuments))
	for i, doc := range st.RetrievedDocuments {
		texts[i] = doc.Text
	}

	rerankStart := time.Now()
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RerankTimeout)
	scores, err := e.reranker.Score(rctx, st.Query, texts)
	cancel()

	if err != nil {
		e.logger.Warn("reranking_failed_using_similarity_order",
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(rerankStart).Milliseconds()))
		e.truncate(st, limit)
		return
	}

	scoreByIndex := make(map[int]float32, len(scores))
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(st.RetrievedDocuments) {
			continue
		}
		scoreByIndex[s.Index] = s.Score
	}

	reranked := make([]scoredDocument, 0, len(st.RetrievedDocuments))
	for i, doc := range st.RetrievedDocuments {
		score, ok := scoreByIndex[i]
		if ok {
			doc.RerankScore = &score
		}
		reranked = append(reranked, scoredDocument{doc: doc, scored: ok, score: score})
	}

	// Stable: candidates with equal scores keep their similarity order, and
	// unscored candidates sink below every scored one.
	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].scored != reranked[j].scored {
			return reranked[i].scored
		}
		return reranked[i].score > reranked[j].score
	})

	if len(reranked) > limit {
		reranked = reranked[:limit]
	}
	st.FinalDocuments = make([]domain.RetrievedDocument, 0, len(reranked))
	for _, sd := range reranked {
		st.FinalDocuments = append(st.FinalDocuments, sd.doc)
	}
	st.NumContextsUsed = len(st.FinalDocuments)

	e.logger.Info("reranking_completed",
		slog.Int("candidate_count", len(st.RetrievedDocuments)),
		slog.Int("final_count", st.NumContextsUsed),
		slog.String("model", e.reranker.ModelName()),
		slog.Int64("duration_ms", time.Since(rerankStart).Milliseconds()))
}

func (e *Executor) truncate(st *State, limit int) {
	docs := st.RetrievedDocuments
	if len(docs) > limit {
		docs = docs[:limit]
	}
	st.FinalDocuments = docs
	st.NumContextsUsed = len(docs)
	e.logger.Info("rerank_truncation_applied",
		slog.Int("final_count", st.NumContextsUsed))
}
