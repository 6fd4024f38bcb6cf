package pipeline

import (
	"time"

	"retrieval-king/internal/domain"
)

// Step is a pipeline state-machine position.
type Step int

const (
	StepClassifying Step = iota
	StepRewriting
	StepRetrievingSingle
	StepRetrievingParallel
	StepReranking
	StepGenerating
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepClassifying:
		return "classifying"
	case StepRewriting:
		return "rewriting"
	case StepRetrievingSingle:
		return "retrieving_single"
	case StepRetrievingParallel:
		return "retrieving_parallel"
	case StepReranking:
		return "reranking"
	case StepGenerating:
		return "generating"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// State is the single mutable record threaded through all stages. One State
// is created per query, owned exclusively by that query's flow, and discarded
// after the response is returned.
type State struct {
	// Request parameters. Query is immutable once set.
	Query       string
	TopK        int
	UseReranker bool

	// Classify/rewrite outputs.
	ShouldRewrite bool
	QueryVariants []string

	// Retrieval output, pre-rerank.
	RetrievedDocuments   []domain.RetrievedDocument
	NumContextsRetrieved int

	// Rerank output, authoritative for citations.
	FinalDocuments  []domain.RetrievedDocument
	NumContextsUsed int

	// Generation outputs.
	Response  string
	Citations []domain.Citation

	ProcessingTime time.Duration
}

// Next is the pure transition function of the pipeline state machine. It
// inspects only the state record, never performs work, and always makes
// progress toward StepDone.
func Next(step Step, st *State) Step {
	switch step {
	case StepClassifying:
		if st.ShouldRewrite {
			return StepRewriting
		}
		return StepRetrievingSingle
	case StepRewriting:
		if len(st.QueryVariants) > 1 {
			return StepRetrievingParallel
		}
		return StepRetrievingSingle
	case StepRetrievingSingle, StepRetrievingParallel:
		return StepReranking
	case StepReranking:
		return StepGenerating
	case StepGenerating:
		return StepDone
	default:
		return StepDone
	}
}
