package kb

import (
	"context"
	"fmt"

	"github.com/calai/calai-go/internal/rag"
)

// Retriever wraps the embedding index with the top-k + absolute-threshold
// cutoff policy. It embeds the query once, ranks every chunk, keeps the topK
// highest, then drops anything under the threshold — so it may return fewer
// than topK hits, including none, but never a hit below threshold.
type Retriever struct {
	// svc provides the current index.
	svc *Service
	// embedder computes the query embedding.
	embedder rag.Embedder
	// topK is the default result cap when the caller passes 0.
	topK int
	// threshold is the default minimum similarity when the caller passes 0.
	threshold float64
}

// NewRetriever constructs a Retriever over the service's index.
// topK and threshold become the defaults for Retrieve calls passing zero.
func NewRetriever(svc *Service, embedder rag.Embedder, topK int, threshold float64) (*Retriever, error) {
	if svc == nil {
		return nil, fmt.Errorf("kb: service must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("kb: embedder must not be nil")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Retriever{svc: svc, embedder: embedder, topK: topK, threshold: threshold}, nil
}

// Retrieve returns the knowledge-base hits for query in descending-score
// order. topK or threshold of 0 use the retriever defaults. An empty index
// returns an empty slice without calling the embedder.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, threshold float64) ([]rag.Hit, error) {
	if topK <= 0 {
		topK = r.topK
	}
	if threshold <= 0 {
		threshold = r.threshold
	}

	ix := r.svc.Index()
	if ix.Len() == 0 {
		return nil, nil
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("kb: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("kb: embedder returned empty result for query")
	}

	hits := ix.Search(embeddings[0], topK)

	// The threshold applies after the top-k cut: nothing below it is ever
	// returned, even when fewer than topK qualify.
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}
	return kept, nil
}
