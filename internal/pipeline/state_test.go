package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"retrieval-king/internal/pipeline"
)

func TestNext_DirectPath(t *testing.T) {
	st := &pipeline.State{Query: "q"}

	assert.Equal(t, pipeline.StepRetrievingSingle, pipeline.Next(pipeline.StepClassifying, st))
	assert.Equal(t, pipeline.StepReranking, pipeline.Next(pipeline.StepRetrievingSingle, st))
	assert.Equal(t, pipeline.StepGenerating, pipeline.Next(pipeline.StepReranking, st))
	assert.Equal(t, pipeline.StepDone, pipeline.Next(pipeline.StepGenerating, st))
}

func TestNext_RewritePathSingleVariant(t *testing.T) {
	st := &pipeline.State{Query: "q", ShouldRewrite: true}

	assert.Equal(t, pipeline.StepRewriting, pipeline.Next(pipeline.StepClassifying, st))

	// One variant routes back to the single retrieval path.
	st.QueryVariants = []string{"q"}
	assert.Equal(t, pipeline.StepRetrievingSingle, pipeline.Next(pipeline.StepRewriting, st))
}

func TestNext_RewritePathMultipleVariants(t *testing.T) {
	st := &pipeline.State{
		Query:         "q",
		ShouldRewrite: true,
		QueryVariants: []string{"a", "b", "c"},
	}

	assert.Equal(t, pipeline.StepRetrievingParallel, pipeline.Next(pipeline.StepRewriting, st))
	assert.Equal(t, pipeline.StepReranking, pipeline.Next(pipeline.StepRetrievingParallel, st))
}

func TestNext_DoneIsTerminal(t *testing.T) {
	st := &pipeline.State{Query: "q"}
	assert.Equal(t, pipeline.StepDone, pipeline.Next(pipeline.StepDone, st))
}

func TestNext_AlwaysReachesDone(t *testing.T) {
	// Every state combination must terminate within the machine's diameter.
	states := []*pipeline.State{
		{},
		{ShouldRewrite: true},
		{ShouldRewrite: true, QueryVariants: []string{"a"}},
		{ShouldRewrite: true, QueryVariants: []string{"a", "b", "c"}},
	}
	for _, st := range states {
		step := pipeline.StepClassifying
		for i := 0; i < 10; i++ {
			if step == pipeline.StepDone {
				break
			}
			step = pipeline.Next(step, st)
		}
		assert.Equal(t, pipeline.StepDone, step)
	}
}
