package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"retrieval-king/internal/domain"
	"retrieval-king/internal/pipeline"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// AnswerQueryInput is a single question with its retrieval knobs. TopK <= 0
// means "use the configured default"; UseReranker defaults to true at the
// HTTP boundary.
type AnswerQueryInput struct {
	Query       string
	TopK        int
	UseReranker bool
}

// AnswerQueryOutput is the complete answer envelope returned to callers.
type AnswerQueryOutput struct {
	QueryID              uuid.UUID
	Query                string
	Response             string
	Citations            []domain.Citation
	NumContextsRetrieved int
	NumContextsUsed      int
	ProcessingTime       time.Duration
}

// AnswerQueryUsecase runs the question-answering pipeline. Execute returns an
// error only for invalid input; pipeline-internal failures degrade into the
// response body instead.
type AnswerQueryUsecase interface {
	Execute(ctx context.Context, input AnswerQueryInput) (*AnswerQueryOutput, error)
	Stream(ctx context.Context, input AnswerQueryInput) (<-chan pipeline.Event, error)
}

type answerQueryUsecase struct {
	executor *pipeline.Executor
	cache    *expirable.LRU[string, *AnswerQueryOutput]
	logger   *slog.Logger
}

// NewAnswerQueryUsecase wires the pipeline behind an expiring answer cache.
// cacheSize <= 0 disables caching.
func NewAnswerQueryUsecase(executor *pipeline.Executor, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) AnswerQueryUsecase {
	var cache *expirable.LRU[string, *AnswerQueryOutput]
	if cacheSize > 0 {
		cache = expirable.NewLRU[string, *AnswerQueryOutput](cacheSize, nil, cacheTTL)
	}
	return &answerQueryUsecase{
		executor: executor,
		cache:    cache,
		logger:   logger,
	}
}

func (u *answerQueryUsecase) Execute(ctx context.Context, input AnswerQueryInput) (*AnswerQueryOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	key := cacheKey(input)
	if u.cache != nil {
		if cached, ok := u.cache.Get(key); ok {
			u.logger.Info("answer_cache_hit", slog.String("query_id", cached.QueryID.String()))
			return cached, nil
		}
	}

	st := u.executor.Run(ctx, input.Query, input.TopK, input.UseReranker)

	output := &AnswerQueryOutput{
		QueryID:              uuid.New(),
		Query:                input.Query,
		Response:             st.Response,
		Citations:            st.Citations,
		NumContextsRetrieved: st.NumContextsRetrieved,
		NumContextsUsed:      st.NumContextsUsed,
		ProcessingTime:       st.ProcessingTime,
	}

	// Only fully successful answers are worth replaying. Empty-corpus and
	// generation-failure responses should be retried on the next ask.
	if u.cache != nil && len(output.Citations) > 0 {
		u.cache.Add(key, output)
	}

	return output, nil
}

// Stream replays a cached answer as a single delta when available, otherwise
// runs the streaming pipeline.
func (u *answerQueryUsecase) Stream(ctx context.Context, input AnswerQueryInput) (<-chan pipeline.Event, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	if u.cache != nil {
		if cached, ok := u.cache.Get(cacheKey(input)); ok {
			u.logger.Info("answer_cache_hit_stream", slog.String("query_id", cached.QueryID.String()))
			return replayCached(cached), nil
		}
	}

	return u.executor.RunStream(ctx, input.Query, input.TopK, input.UseReranker), nil
}

func replayCached(cached *AnswerQueryOutput) <-chan pipeline.Event {
	events := make(chan pipeline.Event, 3)
	events <- pipeline.Event{Kind: pipeline.EventKindCitations, Citations: cached.Citations}
	events <- pipeline.Event{Kind: pipeline.EventKindDelta, Delta: cached.Response}
	events <- pipeline.Event{Kind: pipeline.EventKindDone, Done: &pipeline.DoneEvent{
		ProcessingTimeMs: cached.ProcessingTime.Milliseconds(),
	}}
	close(events)
	return events
}

func cacheKey(input AnswerQueryInput) string {
	return fmt.Sprintf("%s|%d|%t", input.Query, input.TopK, input.UseReranker)
}
