package retrieval

import "context"

// ChunkRepository is the narrow storage boundary for similarity search.
// The pipeline never issues vector queries itself, so the storage engine
// can be swapped without touching pipeline logic.
type ChunkRepository interface {
	// SearchChunks returns up to limit chunks whose cosine similarity to
	// vector is at least threshold, ordered by descending similarity.
	// When moduleIDs is non-empty the search is restricted to those
	// modules.
	SearchChunks(ctx context.Context, vector []float32, threshold float64, limit int, moduleIDs []string) ([]RetrievedChunk, error)

	// SearchModuleSummaries matches vector against the stored per-module
	// summary embeddings.
	SearchModuleSummaries(ctx context.Context, vector []float32, threshold float64, limit int) ([]ModuleScore, error)
}
