// Package detect scores catalog modules against a question using keyword
// overlap and embedding similarity, merging both passes into a single
// confidence-ranked list.
package detect

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/agendia/assistant/internal/catalog"
	"github.com/agendia/assistant/internal/retrieval"
)

// Source records which pass produced a detection.
type Source string

const (
	SourceKeyword   Source = "keyword"
	SourceEmbedding Source = "embedding"
	SourceHybrid    Source = "hybrid"
)

// Detected is one module detection for the current request.
type Detected struct {
	ModuleID   string
	Name       string
	Confidence float64
	Source     Source
}

// SummarySearcher is the slice of the chunk repository the detector needs.
type SummarySearcher interface {
	SearchModuleSummaries(ctx context.Context, vector []float32, threshold float64, limit int) ([]retrieval.ModuleScore, error)
}

// Detector runs the hybrid keyword + embedding module detection.
type Detector struct {
	searcher     SummarySearcher
	maxModules   int
	threshold    float64
	keywordBoost float64
}

// New creates a Detector. maxModules caps the result list, threshold gates
// the embedding pass, and keywordBoost is the additive bonus applied to
// keyword-backed detections.
func New(searcher SummarySearcher, maxModules int, threshold, keywordBoost float64) *Detector {
	return &Detector{
		searcher:     searcher,
		maxModules:   maxModules,
		threshold:    threshold,
		keywordBoost: keywordBoost,
	}
}

// Detect returns the modules implicated by the question, sorted by
// descending confidence and capped at the configured limit.
//
// A failure in the embedding pass does not fail detection: the keyword
// pass alone still produces a usable result. The embedding error that
// matters to the rest of the pipeline is the one from embedding the
// question itself, which happens before Detect is called.
func (d *Detector) Detect(ctx context.Context, question string, questionEmbedding []float32) []Detected {
	byID := make(map[string]Detected)

	for _, det := range d.keywordPass(question) {
		byID[det.ModuleID] = det
	}

	embDetections, err := d.embeddingPass(ctx, questionEmbedding)
	if err != nil {
		slog.Warn("module detection: embedding pass failed, keyword-only result", "error", err)
	}
	for _, det := range embDetections {
		if _, ok := byID[det.ModuleID]; ok {
			// Found by both passes: embedding confidence plus boost.
			merged := det
			merged.Confidence = clip1(det.Confidence + d.keywordBoost)
			merged.Source = SourceHybrid
			byID[det.ModuleID] = merged
		} else {
			byID[det.ModuleID] = det
		}
	}

	// Keyword-only detections receive the additive boost too. Whether an
	// embedding-unvalidated keyword match deserves high confidence is an
	// open product question; current behavior trusts it.
	results := make([]Detected, 0, len(byID))
	for _, det := range byID {
		if det.Source == SourceKeyword {
			det.Confidence = clip1(det.Confidence + d.keywordBoost)
		}
		results = append(results, det)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].ModuleID < results[j].ModuleID
	})

	if len(results) > d.maxModules {
		results = results[:d.maxModules]
	}
	return results
}

// keywordPass counts case-insensitive substring matches of each module's
// keywords (own plus submodules) in the question. Modules with zero
// matches are dropped.
func (d *Detector) keywordPass(question string) []Detected {
	q := strings.ToLower(question)

	var results []Detected
	for _, m := range catalog.Modules {
		keywords := m.AllKeywords()
		if len(keywords) == 0 {
			continue
		}
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(q, strings.ToLower(kw)) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		confidence := clip1(float64(matches) / float64(len(keywords)) * 5)
		results = append(results, Detected{
			ModuleID:   m.ID,
			Name:       m.Name,
			Confidence: confidence,
			Source:     SourceKeyword,
		})
	}
	return results
}

func (d *Detector) embeddingPass(ctx context.Context, embedding []float32) ([]Detected, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	scores, err := d.searcher.SearchModuleSummaries(ctx, embedding, d.threshold, d.maxModules)
	if err != nil {
		return nil, err
	}

	results := make([]Detected, 0, len(scores))
	for _, s := range scores {
		name := s.ModuleID
		if m, ok := catalog.ByID(s.ModuleID); ok {
			name = m.Name
		}
		results = append(results, Detected{
			ModuleID:   s.ModuleID,
			Name:       name,
			Confidence: clip1(s.Similarity),
			Source:     SourceEmbedding,
		})
	}
	return results, nil
}

func clip1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
