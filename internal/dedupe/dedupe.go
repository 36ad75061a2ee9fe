// Package dedupe removes near-duplicate retrieved passages before prompt
// assembly. Re-ingested documents often leave overlapping chunks around;
// sending both wastes prompt budget without adding information.
package dedupe

import (
	"sort"
	"strings"

	"github.com/agendia/assistant/internal/retrieval"
)

// DefaultJaccardThreshold is the word-set similarity above which two
// chunks are considered the same passage.
const DefaultJaccardThreshold = 0.8

// Deduplicate removes duplicates in two steps: chunks sharing the same
// (filePath, section) identity are collapsed to the highest-similarity
// one, then lexical near-duplicates are dropped by pairwise Jaccard
// comparison against the already-accepted set.
//
// The input is sorted before processing, so the result is deterministic
// for a fixed input and the globally best chunk of any duplicate group
// always survives.
func Deduplicate(chunks []retrieval.RetrievedChunk, jaccardThreshold float64) []retrieval.RetrievedChunk {
	if len(chunks) <= 1 {
		return chunks
	}
	if jaccardThreshold <= 0 {
		jaccardThreshold = DefaultJaccardThreshold
	}

	sorted := make([]retrieval.RetrievedChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Similarity > sorted[j].Similarity
	})

	// Step 1: section identity. First seen wins within a group because
	// the slice is already in descending similarity order.
	type sectionKey struct {
		filePath string
		section  string
	}
	seen := make(map[sectionKey]bool, len(sorted))
	survivors := sorted[:0]
	for _, c := range sorted {
		key := sectionKey{filePath: c.FilePath, section: c.Section}
		if seen[key] {
			continue
		}
		seen[key] = true
		survivors = append(survivors, c)
	}

	// Step 2: lexical near-duplicates against the accepted set.
	accepted := make([]retrieval.RetrievedChunk, 0, len(survivors))
	acceptedWords := make([]map[string]struct{}, 0, len(survivors))
	for _, c := range survivors {
		words := wordSet(c.Content)
		dup := false
		for _, prev := range acceptedWords {
			if jaccard(words, prev) >= jaccardThreshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		accepted = append(accepted, c)
		acceptedWords = append(acceptedWords, words)
	}

	return accepted
}

// wordSet tokenizes content into a lowercase word set.
func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard computes |a ∩ b| / |a ∪ b| over two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
