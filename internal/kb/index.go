package kb

import (
	"fmt"
	"sort"

	"github.com/calai/calai-go/internal/rag"
)

// Index is the in-memory embedding index over knowledge-base chunks.
// chunks[i] and vectors[i] are always co-indexed — there is no embedding
// without a chunk and no chunk without an embedding. An Index is immutable
// after construction; rebuilds produce a fresh Index that the Service swaps
// in atomically.
type Index struct {
	// chunks is the ordered list of KB chunks.
	chunks []Chunk
	// vectors holds the embedding for each chunk, parallel to chunks.
	vectors [][]float32
	// dimension is the embedding vector length (0 for an empty index).
	dimension int
}

// NewIndex constructs an Index from co-indexed chunks and vectors.
// It enforces the co-indexing invariant and consistent dimensions.
func NewIndex(chunks []Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("kb: chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	dim := 0
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("kb: empty embedding for chunk %s", chunks[i].ID)
		}
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return nil, fmt.Errorf("kb: inconsistent embedding dimension for chunk %s: got %d, want %d", chunks[i].ID, len(v), dim)
		}
	}

	return &Index{chunks: chunks, vectors: vectors, dimension: dim}, nil
}

// EmptyIndex returns an index with no chunks. Search on it always returns
// an empty result.
func EmptyIndex() *Index {
	return &Index{}
}

// Len returns the number of chunks in the index.
func (ix *Index) Len() int { return len(ix.chunks) }

// Dimension returns the embedding vector length, or 0 for an empty index.
func (ix *Index) Dimension() int { return ix.dimension }

// Chunk returns the chunk at position i.
func (ix *Index) Chunk(i int) Chunk { return ix.chunks[i] }

// scored pairs a chunk position with its query similarity.
type scored struct {
	// pos is the chunk's original position in the index.
	pos int
	// score is the cosine similarity against the query vector.
	score float64
}

// Search returns up to topK (chunk, score) pairs ranked by descending cosine
// similarity against queryVector. Ties are broken by original chunk order.
// An empty index or non-positive topK returns nil.
func (ix *Index) Search(queryVector []float32, topK int) []rag.Hit {
	if len(ix.chunks) == 0 || topK <= 0 {
		return nil
	}

	ranked := make([]scored, len(ix.vectors))
	for i, v := range ix.vectors {
		ranked[i] = scored{pos: i, score: rag.CosineSimilarity(queryVector, v)}
	}

	// Stable sort keeps original chunk order for equal scores.
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	if topK > len(ranked) {
		topK = len(ranked)
	}

	hits := make([]rag.Hit, 0, topK)
	for _, r := range ranked[:topK] {
		c := ix.chunks[r.pos]
		hits = append(hits, rag.Hit{
			SourceID: c.ID,
			Text:     c.Text,
			Score:    r.score,
			Origin:   rag.OriginKB,
		})
	}
	return hits
}
