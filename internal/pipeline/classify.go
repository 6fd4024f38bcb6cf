package pipeline

import (
	"context"
	"log/slog"
)

// classify asks the generator whether the query would benefit from being
// broken into sub-queries. Any failure fails safe to the cheaper direct path.
func (e *Executor) classify(ctx context.Context, st *State) {
	decision, err := e.generator.RewriteQuery(ctx, st.Query)
	if err != nil {
		e.logger.Warn("query_classification_failed",
			slog.String("error", err.Error()))
		st.ShouldRewrite = false
		return
	}
	st.ShouldRewrite = decision.ShouldRewrite
	if st.ShouldRewrite {
		e.logger.Info("query_marked_for_rewriting")
	}
}

// rewrite obtains the variant list. Zero variants (or a failed call) fall
// back to a single-element list holding the original query, so retrieval
// always has at least one query to run. Variant order is generation order.
func (e *Executor) rewrite(ctx context.Context, st *State) {
	decision, err := e.generator.RewriteQuery(ctx, st.Query)
	if err != nil {
		e.logger.Warn("query_rewriting_failed",
			slog.String("error", err.Error()))
		st.QueryVariants = []string{st.Query}
		return
	}

	variants := make([]string, 0, len(decision.Variants))
	for _, v := range decision.Variants {
		if v != "" {
			variants = append(variants, v)
		}
	}
	if len(variants) == 0 {
		variants = []string{st.Query}
	}

	st.QueryVariants = variants
	e.logger.Info("query_rewritten",
		slog.Int("variant_count", len(variants)),
		slog.Any("variants", variants))
}
