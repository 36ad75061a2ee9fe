// Package cache stores complete answers keyed by a normalized-question
// hash, so repeated questions skip the embedding and model calls entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// strippedPunctuation is the fixed set of punctuation removed during query
// normalization. Keys written with one set can only be hit with the same
// set, so changing it invalidates the whole cache.
const strippedPunctuation = "?¿!¡.,;:\"'"

// Entry is one cached answer.
type Entry struct {
	QueryHash   string
	QueryText   string
	Response    string
	ModulesUsed []string
	ChunkIDs    []int64
	Confidence  string
	HitCount    int
	ExpiresAt   time.Time
}

// Store reads and writes cache rows.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewStore creates a cache Store with the given entry TTL.
func NewStore(db *sql.DB, ttl time.Duration) *Store {
	return &Store{db: db, ttl: ttl, now: time.Now}
}

// Normalize lowercases, trims, collapses internal whitespace to single
// spaces, and strips the fixed punctuation set. Questions differing only
// in case, whitespace, or that punctuation normalize identically.
func Normalize(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.Map(func(r rune) rune {
		if strings.ContainsRune(strippedPunctuation, r) {
			return -1
		}
		return r
	}, q)
	return strings.Join(strings.Fields(q), " ")
}

// Key derives the content-addressed cache key for a query.
func Key(query string) string {
	sum := sha256.Sum256([]byte(Normalize(query)))
	return hex.EncodeToString(sum[:])
}

// Check looks the query up. Expired entries are deleted and reported as a
// miss (nil, nil). On a hit the entry's stored hit count is incremented
// and the returned Entry reflects the incremented value.
func (s *Store) Check(ctx context.Context, query string) (*Entry, error) {
	hash := Key(query)

	var e Entry
	var modulesJSON, chunksJSON, expiresAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT query_hash, query_text, response, modules_used, chunk_ids, confidence, hit_count, expires_at
		FROM query_cache WHERE query_hash = ?`, hash,
	).Scan(&e.QueryHash, &e.QueryText, &e.Response, &modulesJSON, &chunksJSON, &e.Confidence, &e.HitCount, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking cache: %w", err)
	}

	e.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}

	if s.now().After(e.ExpiresAt) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE query_hash = ?`, hash); err != nil {
			return nil, fmt.Errorf("deleting expired entry: %w", err)
		}
		return nil, nil
	}

	if err := json.Unmarshal([]byte(modulesJSON), &e.ModulesUsed); err != nil {
		return nil, fmt.Errorf("unmarshaling modules: %w", err)
	}
	if err := json.Unmarshal([]byte(chunksJSON), &e.ChunkIDs); err != nil {
		return nil, fmt.Errorf("unmarshaling chunk ids: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE query_cache SET hit_count = hit_count + 1 WHERE query_hash = ?`, hash); err != nil {
		return nil, fmt.Errorf("incrementing hit count: %w", err)
	}
	e.HitCount++
	return &e, nil
}

// Save upserts the answer for a query. Overwriting resets the hit count
// and recomputes the expiry.
func (s *Store) Save(ctx context.Context, query, response string, modulesUsed []string, chunkIDs []int64, confidence string) error {
	modulesJSON, err := json.Marshal(orEmpty(modulesUsed))
	if err != nil {
		return fmt.Errorf("marshaling modules: %w", err)
	}
	chunksJSON, err := json.Marshal(orEmptyInt64(chunkIDs))
	if err != nil {
		return fmt.Errorf("marshaling chunk ids: %w", err)
	}
	expiresAt := s.now().UTC().Add(s.ttl).Format(time.RFC3339)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_cache (query_hash, query_text, response, modules_used, chunk_ids, confidence, hit_count, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(query_hash) DO UPDATE SET
			query_text = excluded.query_text,
			response = excluded.response,
			modules_used = excluded.modules_used,
			chunk_ids = excluded.chunk_ids,
			confidence = excluded.confidence,
			hit_count = 0,
			expires_at = excluded.expires_at`,
		Key(query), query, response, string(modulesJSON), string(chunksJSON), confidence, expiresAt)
	if err != nil {
		return fmt.Errorf("saving cache entry: %w", err)
	}
	return nil
}

// Invalidate deletes every entry whose modules-used list contains the
// given module id and returns how many were removed. Called when the
// documentation for a module is re-ingested.
func (s *Store) Invalidate(ctx context.Context, moduleID string) (int, error) {
	// modules_used is a JSON array of strings; an exact-element match is a
	// quoted substring.
	needle := `%"` + moduleID + `"%`
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE modules_used LIKE ?`, needle)
	if err != nil {
		return 0, fmt.Errorf("invalidating module %s: %w", moduleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyInt64(s []int64) []int64 {
	if s == nil {
		return []int64{}
	}
	return s
}
