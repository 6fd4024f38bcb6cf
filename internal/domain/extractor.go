package domain

import "context"

// ExtractedPage is one page of extracted text. PageNumber is 1-based.
type ExtractedPage struct {
	PageNumber int
	Text       string
}

// ExtractResult carries the text pulled out of an uploaded file.
type ExtractResult struct {
	Text  string
	Pages []ExtractedPage
}

// TextExtractor defines the interface for pulling plain text out of binary
// documents (PDFs, images). Plain-text uploads bypass it entirely.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (*ExtractResult, error)
	Version() string
}
