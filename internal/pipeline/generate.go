package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"retrieval-king/internal/domain"
)

// NoResultsMessage is the canned response returned when retrieval yields
// nothing usable; the generator is not called in that case.
const NoResultsMessage = "I couldn't find any relevant documents to answer your question."

// generate drafts the final answer from FinalDocuments and maps each context
// to a numbered citation. Generation failure is the one failure surfaced to
// the end user: the response carries an explicit error description instead of
// silently degrading to empty content.
func (e *Executor) generate(ctx context.Context, st *State) {
	if len(st.FinalDocuments) == 0 {
		st.Response = NoResultsMessage
		st.Citations = []domain.Citation{}
		return
	}

	contexts := contextTexts(st.FinalDocuments)
	answer, err := e.generator.GenerateAnswer(ctx, st.Query, contexts)
	if err != nil {
		e.logger.Error("answer_generation_failed",
			slog.String("error", err.Error()))
		st.Response = fmt.Sprintf("Error generating response: %v", err)
		st.Citations = []domain.Citation{}
		return
	}

	st.Response = answer
	st.Citations = buildCitations(st.FinalDocuments)
	e.logger.Info("answer_generated",
		slog.Int("citation_count", len(st.Citations)))
}

func contextTexts(docs []domain.RetrievedDocument) []string {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	return texts
}

// buildCitations maps FinalDocuments positionally onto 1-based citations, so
// citation numbering mirrors the bracketed context numbering handed to the
// generator.
func buildCitations(docs []domain.RetrievedDocument) []domain.Citation {
	citations := make([]domain.Citation, len(docs))
	for i, doc := range docs {
		citations[i] = domain.Citation{
			CitationID:      i + 1,
			DocumentID:      doc.Metadata.DocumentID,
			Filename:        doc.Metadata.Filename,
			ChunkID:         doc.Metadata.ChunkID,
			Text:            doc.Text,
			PageNumber:      doc.Metadata.PageNumber,
			ConfidenceScore: doc.Confidence(),
		}
	}
	return citations
}
