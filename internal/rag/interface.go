// Package rag defines the shared interfaces and types for the retrieval
// pipeline: text embedding and scored retrieval hits from either source
// (knowledge base or calendar events). Concrete implementations live in
// internal/embedder, internal/kb, and internal/events so the agent layer
// never depends on a specific backend.
package rag

import (
	"context"
	"math"
)

// Origin identifies which source a retrieval hit was drawn from.
type Origin string

const (
	// OriginKB marks a hit drawn from the knowledge-base chunk index.
	OriginKB Origin = "kb"
	// OriginEvent marks a hit drawn from the per-query calendar event set.
	OriginEvent Origin = "event"
)

// Hit is a single scored retrieval result.
type Hit struct {
	// SourceID identifies the origin record: "file#chunkN" for KB hits,
	// the provider event ID for event hits.
	SourceID string

	// Text is the retrievable text of the hit (chunk text or the event's
	// canonical rendering).
	Text string

	// Score is the cosine similarity against the query embedding, in
	// [-1, 1] and practically [0, 1] for the embedding spaces we use.
	Score float64

	// Origin records which retriever produced this hit.
	Origin Origin
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be deterministic for equal inputs and safe to call
// from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CosineSimilarity returns the cosine similarity of a and b computed in
// float64. Mismatched lengths or a zero vector yield 0 rather than NaN so
// ranking code never has to special-case degenerate inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
