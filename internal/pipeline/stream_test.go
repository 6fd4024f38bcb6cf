package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"retrieval-king/internal/domain"
	"retrieval-king/internal/pipeline"
)

func deltaChannel(deltas ...string) <-chan string {
	ch := make(chan string, len(deltas))
	for _, d := range deltas {
		ch <- d
	}
	close(ch)
	return ch
}

func errChannel(errs ...error) <-chan error {
	ch := make(chan error, len(errs)+1)
	for _, e := range errs {
		ch <- e
	}
	close(ch)
	return ch
}

func collectEvents(t *testing.T, events <-chan pipeline.Event) []pipeline.Event {
	t.Helper()
	var out []pipeline.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestRunStream_CitationsFirstThenDeltasThenDone(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockVectorStore)
	gen := new(MockGenerator)

	noRewrite(gen)
	vec := []float32{0.5}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{vec}, nil)
	store.On("Search", mock.Anything, vec, 100).
		Return([]domain.RetrievedDocument{doc("c1", 0.9)}, nil)
	gen.On("GenerateAnswerStream", mock.Anything, "q", mock.Anything).
		Return(deltaChannel("Photosynthesis ", "is ", "[1]"), errChannel(), nil)

	exec := pipeline.NewExecutor(encoder, store, nil, gen, pipeline.Config{}, testLogger())
	events := collectEvents(t, exec.RunStream(context.Background(), "q", 0, false))

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, pipeline.EventKindCitations, events[0].Kind)
	require.Len(t, events[0].Citations, 1)
	assert.Equal(t, 1, events[0].Citations[0].CitationID)

	var text string
	for _, ev := range events[1 : len(events)-1] {
		assert.Equal(t, pipeline.EventKindDelta, ev.Kind)
		text += ev.Delta
	}
	assert.Equal(t, "Photosynthesis is [1]", text)

	last := events[len(events)-1]
	assert.Equal(t, pipeline.EventKindDone, last.Kind)
	require.NotNil(t, last.Done)
	assert.GreaterOrEqual(t, last.Done.ProcessingTimeMs, int64(0))
}

func TestRunStream_NoDocumentsEmitsCannedResponse(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockVectorStore)
	gen := new(MockGenerator)

	noRewrite(gen)
	vec := []float32{0.5}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{vec}, nil)
	store.On("Search", mock.Anything, vec, 100).
		Return([]domain.RetrievedDocument{}, nil)

	exec := pipeline.NewExecutor(encoder, store, nil, gen, pipeline.Config{}, testLogger())
	events := collectEvents(t, exec.RunStream(context.Background(), "q", 0, false))

	require.Len(t, events, 3)
	assert.Equal(t, pipeline.EventKindCitations, events[0].Kind)
	assert.Empty(t, events[0].Citations)
	assert.Equal(t, pipeline.NoResultsMessage, events[1].Delta)
	assert.Equal(t, pipeline.EventKindDone, events[2].Kind)
	gen.AssertNotCalled(t, "GenerateAnswerStream", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunStream_MidStreamFailureEmitsProducedDeltasThenError(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockVectorStore)
	gen := new(MockGenerator)

	noRewrite(gen)
	vec := []float32{0.5}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{vec}, nil)
	store.On("Search", mock.Anything, vec, 100).
		Return([]domain.RetrievedDocument{doc("c1", 0.9)}, nil)

	deltas := make(chan string, 1)
	deltas <- "partial "
	close(deltas)
	gen.On("GenerateAnswerStream", mock.Anything, "q", mock.Anything).
		Return((<-chan string)(deltas), errChannel(errors.New("connection reset")), nil)

	exec := pipeline.NewExecutor(encoder, store, nil, gen, pipeline.Config{}, testLogger())
	events := collectEvents(t, exec.RunStream(context.Background(), "q", 0, false))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, pipeline.EventKindError, last.Kind)
	assert.Contains(t, last.Err, "connection reset")

	var text string
	sawDone := false
	for _, ev := range events {
		if ev.Kind == pipeline.EventKindDelta {
			text += ev.Delta
		}
		if ev.Kind == pipeline.EventKindDone {
			sawDone = true
		}
	}
	assert.Equal(t, "partial ", text)
	assert.False(t, sawDone)
}

func TestRunStream_SetupFailureEmitsError(t *testing.T) {
	encoder := new(MockVectorEncoder)
	store := new(MockVectorStore)
	gen := new(MockGenerator)

	noRewrite(gen)
	vec := []float32{0.5}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{vec}, nil)
	store.On("Search", mock.Anything, vec, 100).
		Return([]domain.RetrievedDocument{doc("c1", 0.9)}, nil)
	gen.On("GenerateAnswerStream", mock.Anything, "q", mock.Anything).
		Return(nil, nil, errors.New("llm unreachable"))

	exec := pipeline.NewExecutor(encoder, store, nil, gen, pipeline.Config{}, testLogger())
	events := collectEvents(t, exec.RunStream(context.Background(), "q", 0, false))

	require.Len(t, events, 2)
	assert.Equal(t, pipeline.EventKindCitations, events[0].Kind)
	assert.Equal(t, pipeline.EventKindError, events[1].Kind)
	assert.Contains(t, events[1].Err, "llm unreachable")
}
