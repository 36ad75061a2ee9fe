package retrieval

import (
	"context"
	"fmt"

	"github.com/agendia/assistant/internal/tokens"
)

// Retriever runs similarity search and enforces the context token budget.
type Retriever struct {
	repo             ChunkRepository
	topK             int
	threshold        float64
	maxContextTokens int
}

// NewRetriever creates a Retriever over the given repository.
func NewRetriever(repo ChunkRepository, topK int, threshold float64, maxContextTokens int) *Retriever {
	return &Retriever{
		repo:             repo,
		topK:             topK,
		threshold:        threshold,
		maxContextTokens: maxContextTokens,
	}
}

// Retrieve returns the best chunks for the query embedding, restricted to
// moduleIDs when non-empty, greedily accumulated while the running token
// total stays within the budget. Once a candidate would push past the
// budget no further candidates are accepted; chunks are never split.
//
// The unfiltered-retry fallback for empty module-filtered results belongs
// to the orchestrator, not here.
func (r *Retriever) Retrieve(ctx context.Context, embedding []float32, moduleIDs []string) ([]RetrievedChunk, error) {
	candidates, err := r.repo.SearchChunks(ctx, embedding, r.threshold, r.topK, moduleIDs)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	var selected []RetrievedChunk
	total := 0
	for _, c := range candidates {
		count := c.TokenCount
		if count <= 0 {
			count = tokens.Estimate(c.Content)
		}
		if total+count > r.maxContextTokens {
			break
		}
		selected = append(selected, c)
		total += count
	}
	return selected, nil
}
