package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"retrieval-king/internal/domain"
)

// EventKind discriminates streaming pipeline events.
type EventKind string

const (
	// EventKindCitations is always first and carries the citation list.
	EventKindCitations EventKind = "citations"
	// EventKindDelta carries one ordered response fragment.
	EventKindDelta EventKind = "delta"
	// EventKindDone terminates a successful stream.
	EventKindDone EventKind = "done"
	// EventKindError terminates a failed stream.
	EventKindError EventKind = "error"
)

// Event is one message on the streaming pipeline channel.
type Event struct {
	Kind      EventKind
	Citations []domain.Citation
	Delta     string
	Err       string
	Done      *DoneEvent
}

// DoneEvent carries completion metadata for the sentinel final message.
type DoneEvent struct {
	ProcessingTimeMs int64
}

// RunStream executes the pipeline up to generation, then streams the answer
// as it is produced: a citations event first, ordered text fragments after,
// and a done event carrying the total elapsed time. Consumer cancellation
// (via ctx) stops the producer. Already-produced fragments are emitted before
// a terminal error marker when generation fails mid-stream.
func (e *Executor) RunStream(ctx context.Context, query string, topK int, useReranker bool) <-chan Event {
	events := make(chan Event, 4)
	go func() {
		defer close(events)

		st := &State{
			Query:       query,
			TopK:        topK,
			UseReranker: useReranker,
		}
		start := time.Now()

		for step := StepClassifying; step != StepGenerating; step = Next(step, st) {
			e.apply(ctx, step, st)
		}

		st.Citations = buildCitations(st.FinalDocuments)
		if !e.send(ctx, events, Event{Kind: EventKindCitations, Citations: st.Citations}) {
			return
		}

		if len(st.FinalDocuments) == 0 {
			st.Response = NoResultsMessage
			if !e.send(ctx, events, Event{Kind: EventKindDelta, Delta: NoResultsMessage}) {
				return
			}
			e.send(ctx, events, Event{Kind: EventKindDone, Done: &DoneEvent{
				ProcessingTimeMs: time.Since(start).Milliseconds(),
			}})
			return
		}

		deltaCh, errCh, err := e.generator.GenerateAnswerStream(ctx, st.Query, contextTexts(st.FinalDocuments))
		if err != nil {
			e.logger.Error("answer_stream_setup_failed",
				slog.String("error", err.Error()))
			e.send(ctx, events, Event{Kind: EventKindError, Err: fmt.Sprintf("Error generating response: %v", err)})
			return
		}

		var builder strings.Builder
		for deltaCh != nil || errCh != nil {
			select {
			case <-ctx.Done():
				return
			case delta, ok := <-deltaCh:
				if !ok {
					deltaCh = nil
					continue
				}
				if delta == "" {
					continue
				}
				builder.WriteString(delta)
				if !e.send(ctx, events, Event{Kind: EventKindDelta, Delta: delta}) {
					return
				}
			case streamErr, ok := <-errCh:
				if !ok {
					errCh = nil
					continue
				}
				// Fragments produced before the failure are emitted ahead of
				// the terminal error marker.
			drain:
				for deltaCh != nil {
					select {
					case delta, ok := <-deltaCh:
						if !ok {
							break drain
						}
						if delta == "" {
							continue
						}
						if !e.send(ctx, events, Event{Kind: EventKindDelta, Delta: delta}) {
							return
						}
					default:
						break drain
					}
				}
				e.logger.Error("answer_stream_failed",
					slog.String("error", streamErr.Error()))
				e.send(ctx, events, Event{Kind: EventKindError, Err: fmt.Sprintf("Error generating response: %v", streamErr)})
				return
			}
		}

		st.Response = builder.String()
		st.ProcessingTime = time.Since(start)
		e.send(ctx, events, Event{Kind: EventKindDone, Done: &DoneEvent{
			ProcessingTimeMs: st.ProcessingTime.Milliseconds(),
		}})
	}()
	return events
}

func (e *Executor) send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- ev:
		return true
	}
}
