package domain

import (
	"strings"
)

// ChunkerVersion identifies the chunking algorithm, so the registry can track
// which algorithm produced a document's chunks.
type ChunkerVersion string

const (
	// ChunkerVersionV1 is the word-window chunker with fixed overlap.
	ChunkerVersionV1 ChunkerVersion = "v1"
)

const (
	// DefaultChunkSize is the chunk budget in words.
	DefaultChunkSize = 450
	// DefaultChunkOverlap is the number of words shared between adjacent chunks.
	DefaultChunkOverlap = 75
)

// Chunk is a bounded-size span of a document's extracted text, the unit of
// retrieval.
type Chunk struct {
	Ordinal    int
	Content    string
	WordCount  int
	PageNumber *int
}

// Chunker defines the interface for splitting extracted text into chunks.
type Chunker interface {
	Chunk(text string) ([]Chunk, error)
	Version() ChunkerVersion
}

type wordWindowChunker struct {
	size    int
	overlap int
}

// NewChunker creates the default Chunker with the given word budget and
// overlap. Non-positive arguments fall back to the defaults.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &wordWindowChunker{size: size, overlap: overlap}
}

func (c *wordWindowChunker) Version() ChunkerVersion {
	return ChunkerVersionV1
}

// Chunk slides a fixed word window over the text. Adjacent chunks share
// `overlap` words so sentences cut at a boundary survive in at least one
// chunk. Empty and whitespace-only input yields no chunks.
func (c *wordWindowChunker) Chunk(text string) ([]Chunk, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := c.size - c.overlap
	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		window := words[start:end]
		chunks = append(chunks, Chunk{
			Ordinal:   len(chunks),
			Content:   strings.Join(window, " "),
			WordCount: len(window),
		})
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}
