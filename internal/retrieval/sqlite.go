package retrieval

import (
	"container/heap"
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Compile-time check that SQLiteRepository implements ChunkRepository.
var _ ChunkRepository = (*SQLiteRepository)(nil)

// SQLiteRepository implements ChunkRepository with brute-force cosine
// similarity over the document_chunks and module_summaries tables.
//
// The scan keeps only id + score in a min-heap; full rows are fetched for
// the top-K winners afterwards. Adequate for corpus sizes up to ~100K
// chunks; beyond that an ANN-capable backend should replace this type.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an existing *sql.DB for vector search. The
// tables must already exist (created via migrations).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type idScore struct {
	ID    int64
	Score float64
}

// SearchChunks performs the two-phase similarity scan. The module filter is
// applied in SQL so unrelated modules never leave the store.
func (r *SQLiteRepository) SearchChunks(ctx context.Context, vector []float32, threshold float64, limit int, moduleIDs []string) ([]RetrievedChunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT id, embedding FROM document_chunks`
	var args []interface{}
	if len(moduleIDs) > 0 {
		query += ` WHERE module_id IN (?` + strings.Repeat(",?", len(moduleIDs)-1) + `)`
		for _, id := range moduleIDs {
			args = append(args, id)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunk vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer avoids a decode allocation per row.
	var buf []float32

	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for chunk %d: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if score < threshold {
			continue
		}
		if h.Len() < limit {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	ids := make([]int64, h.Len())
	scores := make(map[int64]float64, h.Len())
	for i := len(ids) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		ids[i] = item.ID
		scores[item.ID] = item.Score
	}

	chunks, err := r.fetchChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, RetrievedChunk{DocumentChunk: c, Similarity: scores[c.ID]})
	}
	sortBySimilarity(results)
	return results, nil
}

func (r *SQLiteRepository) fetchChunks(ctx context.Context, ids []int64) ([]DocumentChunk, error) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, content, module_id, submodule_id, section, doc_type, file_path, heading, token_count, chunk_index, embedding
		FROM document_chunks WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching chunks: %w", err)
	}
	defer rows.Close()

	var chunks []DocumentChunk
	for rows.Next() {
		var c DocumentChunk
		var docType string
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Content, &c.ModuleID, &c.SubmoduleID, &c.Section, &docType, &c.FilePath, &c.Heading, &c.TokenCount, &c.ChunkIndex, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.DocType = DocType(docType)
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for chunk %d: %w", c.ID, err)
		}
		c.Embedding = embedding
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SearchModuleSummaries scans the (small) module_summaries table and
// returns modules above threshold, best first, capped at limit.
func (r *SQLiteRepository) SearchModuleSummaries(ctx context.Context, vector []float32, threshold float64, limit int) ([]ModuleScore, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT module_id, embedding FROM module_summaries`)
	if err != nil {
		return nil, fmt.Errorf("querying module summaries: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	var results []ModuleScore
	var buf []float32
	for rows.Next() {
		var moduleID string
		var blob []byte
		if err := rows.Scan(&moduleID, &blob); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding summary embedding for %s: %w", moduleID, err)
		}
		score := cosine(vector, buf, queryNorm)
		if score >= threshold {
			results = append(results, ModuleScore{ModuleID: moduleID, Similarity: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summary rows: %w", err)
	}

	sortModuleScores(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// InsertChunks writes chunks with their embeddings. This is the ingestion
// side of the store boundary; the query pipeline never calls it.
func (r *SQLiteRepository) InsertChunks(ctx context.Context, chunks []DocumentChunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO document_chunks (id, content, module_id, submodule_id, section, doc_type, file_path, heading, token_count, chunk_index, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		blob := encodeFloat32s(c.Embedding)
		if _, err := stmt.Exec(c.ID, c.Content, c.ModuleID, c.SubmoduleID, c.Section, string(c.DocType), c.FilePath, c.Heading, c.TokenCount, c.ChunkIndex, blob); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting chunk %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// UpsertModuleSummary writes one module's summary text and embedding.
func (r *SQLiteRepository) UpsertModuleSummary(ctx context.Context, moduleID, summary string, embedding []float32) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO module_summaries (module_id, summary, embedding) VALUES (?, ?, ?)
		ON CONFLICT(module_id) DO UPDATE SET summary = excluded.summary, embedding = excluded.embedding`,
		moduleID, summary, encodeFloat32s(embedding))
	if err != nil {
		return fmt.Errorf("upserting summary for %s: %w", moduleID, err)
	}
	return nil
}

// sortBySimilarity orders results descending. Insertion sort is fine for
// top-K sized slices.
func sortBySimilarity(results []RetrievedChunk) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Similarity > results[j-1].Similarity; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func sortModuleScores(results []ModuleScore) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Similarity > results[j-1].Similarity; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// idScoreHeap is a min-heap used to keep the top-K candidates during scans.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
