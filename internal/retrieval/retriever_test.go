package retrieval

import (
	"context"
	"testing"
)

// fakeRepo returns canned results so retriever logic is tested in isolation.
type fakeRepo struct {
	chunks []RetrievedChunk
	err    error
}

func (f *fakeRepo) SearchChunks(_ context.Context, _ []float32, _ float64, _ int, _ []string) ([]RetrievedChunk, error) {
	return f.chunks, f.err
}

func (f *fakeRepo) SearchModuleSummaries(_ context.Context, _ []float32, _ float64, _ int) ([]ModuleScore, error) {
	return nil, nil
}

func chunkWithTokens(id int64, tokens int, sim float64) RetrievedChunk {
	return RetrievedChunk{
		DocumentChunk: DocumentChunk{ID: id, TokenCount: tokens, Content: "x"},
		Similarity:    sim,
	}
}

func TestRetrieveRespectsTokenBudget(t *testing.T) {
	repo := &fakeRepo{chunks: []RetrievedChunk{
		chunkWithTokens(1, 800, 0.9),
		chunkWithTokens(2, 900, 0.8),
		chunkWithTokens(3, 400, 0.7),
	}}
	r := NewRetriever(repo, 10, 0.4, 2000)

	got, err := r.Retrieve(context.Background(), []float32{1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 800 + 900 = 1700 fits; adding 400 would exceed 2000, and acceptance
	// stops there rather than skipping ahead.
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	total := 0
	for _, c := range got {
		total += c.TokenCount
	}
	if total > 2000 {
		t.Errorf("summed tokens %d exceed budget", total)
	}
}

func TestRetrieveStopsAtFirstOverflow(t *testing.T) {
	repo := &fakeRepo{chunks: []RetrievedChunk{
		chunkWithTokens(1, 1900, 0.9),
		chunkWithTokens(2, 500, 0.8),
		chunkWithTokens(3, 50, 0.7), // would fit, but acceptance already stopped
	}}
	r := NewRetriever(repo, 10, 0.4, 2000)

	got, err := r.Retrieve(context.Background(), []float32{1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("got %+v, want only chunk 1", got)
	}
}

func TestRetrieveEstimatesMissingTokenCount(t *testing.T) {
	repo := &fakeRepo{chunks: []RetrievedChunk{
		{DocumentChunk: DocumentChunk{ID: 1, TokenCount: 0, Content: "cuatro por"}, Similarity: 0.9},
	}}
	r := NewRetriever(repo, 10, 0.4, 2000)

	got, err := r.Retrieve(context.Background(), []float32{1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d chunks, want 1", len(got))
	}
}

func TestRetrieveEmptyCandidates(t *testing.T) {
	r := NewRetriever(&fakeRepo{}, 10, 0.4, 2000)
	got, err := r.Retrieve(context.Background(), []float32{1}, []string{"blog"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d chunks, want 0", len(got))
	}
}
