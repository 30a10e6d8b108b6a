// Package kb implements the knowledge-base side of the retrieval pipeline:
// word-window chunking of source documents, an in-memory embedding index with
// a validated on-disk cache, and the top-k + threshold retriever used by the
// agent. The index is built once at startup (or loaded from cache) and
// swapped atomically on explicit rebuild, so request handlers always observe
// a complete index.
package kb

import (
	"fmt"
	"strings"
)

// Chunk is a fixed-size overlapping slice of a source document — the
// retrieval granularity of the knowledge base. A chunk is immutable once
// built; its identity is (SourceFile, ChunkIndex).
type Chunk struct {
	// ID is the stable identifier "sourceFile#chunkN".
	ID string `json:"id"`
	// SourceFile is the knowledge-base file this chunk was cut from.
	SourceFile string `json:"source_file"`
	// ChunkIndex is the zero-based position of this chunk within its file.
	ChunkIndex int `json:"chunk_index"`
	// Text is the chunk content (words joined by single spaces).
	Text string `json:"text"`
}

// Chunker splits document text into overlapping word-based windows.
type Chunker struct {
	// chunkSize is the window length in words.
	chunkSize int
	// overlap is the number of words shared between consecutive windows.
	// Always strictly less than chunkSize.
	overlap int
}

// NewChunker constructs a Chunker. Non-positive sizes fall back to the
// package defaults; an overlap >= chunkSize is clamped so the stride is
// always at least one word and chunking terminates.
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Chunk splits text into overlapping windows of c.chunkSize words advancing
// by chunkSize-overlap words. The final window may be shorter than chunkSize
// so the last word of the document is always covered. Empty or
// whitespace-only text yields no chunks.
func (c *Chunker) Chunk(sourceFile, text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.chunkSize - c.overlap

	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := start + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:         ChunkID(sourceFile, idx),
			SourceFile: sourceFile,
			ChunkIndex: idx,
			Text:       strings.Join(words[start:end], " "),
		})
		if end >= len(words) {
			break
		}
	}
	return chunks
}

// ChunkID returns the canonical "sourceFile#chunkN" identifier.
func ChunkID(sourceFile string, index int) string {
	return fmt.Sprintf("%s#chunk%d", sourceFile, index)
}
