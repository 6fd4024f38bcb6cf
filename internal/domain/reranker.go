package domain

import "context"

// RerankScore pairs a candidate index with its cross-encoder relevance score.
// The index refers to the position in the candidate slice passed to Score;
// results carry no ordering guarantee.
type RerankScore struct {
	Index int
	Score float32
}

// Reranker defines the interface for cross-encoder scoring of (query, text)
// pairs. Implementations call an external scoring service.
//
// Reranking is an optimization, never a correctness requirement: on error,
// callers fall back to similarity-ordered truncation.
type Reranker interface {
	// Score scores each text against the query. The returned slice may be in
	// any order; callers sort by score themselves.
	Score(ctx context.Context, query string, texts []string) ([]RerankScore, error)

	// ModelName returns the model identifier for logging.
	ModelName() string
}
