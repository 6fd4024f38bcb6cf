package domain

import "context"

// RewriteDecision is the classify/rewrite verdict for a query.
type RewriteDecision struct {
	ShouldRewrite bool
	Variants      []string
}

// Generator defines the language-model capabilities the pipeline consumes:
// deciding whether a query should be rewritten into variants, and drafting a
// cited answer from ordered contexts.
type Generator interface {
	// RewriteQuery asks the model whether the query should be split into
	// sub-queries and, if so, for the variants. Callers treat any error as
	// "do not rewrite".
	RewriteQuery(ctx context.Context, query string) (*RewriteDecision, error)

	// GenerateAnswer drafts an answer grounded in the ordered contexts,
	// citing them inline as [1], [2], ... by context position.
	GenerateAnswer(ctx context.Context, query string, contexts []string) (string, error)

	// GenerateAnswerStream is GenerateAnswer with incremental delivery.
	// Text fragments arrive on the first channel in order; a terminal failure
	// arrives on the second. Both channels close when generation ends.
	GenerateAnswerStream(ctx context.Context, query string, contexts []string) (<-chan string, <-chan error, error)

	// Version returns the generator model identifier.
	Version() string
}
