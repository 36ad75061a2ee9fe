package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agendia/assistant/internal/cache"
	"github.com/agendia/assistant/internal/capability"
	"github.com/agendia/assistant/internal/catalog"
	"github.com/agendia/assistant/internal/dedupe"
	"github.com/agendia/assistant/internal/detect"
	"github.com/agendia/assistant/internal/memory"
	"github.com/agendia/assistant/internal/prompt"
	"github.com/agendia/assistant/internal/provider"
	"github.com/agendia/assistant/internal/retrieval"
	"github.com/agendia/assistant/internal/tokens"
)

// Embedder embeds a question. Satisfied by *provider.EmbedClient.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer calls the generative model. Satisfied by *provider.ChatClient.
type Completer interface {
	Complete(ctx context.Context, messages []provider.Message, temperature float64, maxTokens int) (string, provider.Usage, error)
}

// ModuleDetector runs hybrid module detection. Satisfied by *detect.Detector.
type ModuleDetector interface {
	Detect(ctx context.Context, question string, questionEmbedding []float32) []detect.Detected
}

// ChunkRetriever returns budgeted chunks. Satisfied by *retrieval.Retriever.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, embedding []float32, moduleIDs []string) ([]retrieval.RetrievedChunk, error)
}

// MemoryStore is the conversation-memory surface the pipeline needs.
type MemoryStore interface {
	Load(ctx context.Context, sessionID string) (*memory.Memory, error)
	Update(ctx context.Context, sessionID, userID, userMsg, assistantMsg, activeModule string) error
}

// CacheStore is the answer-cache surface the pipeline needs.
type CacheStore interface {
	Check(ctx context.Context, query string) (*cache.Entry, error)
	Save(ctx context.Context, query, response string, modulesUsed []string, chunkIDs []int64, confidence string) error
}

// UsageRecorder receives the model call's token counters. Satisfied by
// *usage.Logger.
type UsageRecorder interface {
	Record(accountID string, u provider.Usage)
}

// Options carries the orchestrator's tunables.
type Options struct {
	MaxQuestionTokens int
	JaccardThreshold  float64
	Temperature       float64
	MaxAnswerTokens   int
}

// Service sequences the full request pipeline. It holds no mutable state
// between requests; everything shared lives in the backing store, so any
// number of requests may run concurrently.
type Service struct {
	embedder  Embedder
	completer Completer
	detector  ModuleDetector
	retriever ChunkRetriever
	memory    MemoryStore
	cache     CacheStore
	usage     UsageRecorder
	assembler *prompt.Assembler
	opts      Options
}

// NewService wires the orchestrator. usage may be nil when the token-usage
// side channel is disabled.
func NewService(
	embedder Embedder,
	completer Completer,
	detector ModuleDetector,
	retriever ChunkRetriever,
	memoryStore MemoryStore,
	cacheStore CacheStore,
	usageRecorder UsageRecorder,
	assembler *prompt.Assembler,
	opts Options,
) *Service {
	return &Service{
		embedder:  embedder,
		completer: completer,
		detector:  detector,
		retriever: retriever,
		memory:    memoryStore,
		cache:     cacheStore,
		usage:     usageRecorder,
		assembler: assembler,
		opts:      opts,
	}
}

// Ask answers one question. Validation failures and provider failures
// return a *Error; cache and memory write failures never do.
func (s *Service) Ask(ctx context.Context, req Request) (*Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errEmptyQuestion()
	}
	if tokens.Estimate(question) > s.opts.MaxQuestionTokens {
		return nil, errQuestionTooLong(s.opts.MaxQuestionTokens)
	}

	uiPath := ""
	if req.UIContext != nil {
		uiPath = strings.TrimSpace(req.UIContext.CurrentPath)
	}

	// The same question asked from different screens caches independently.
	cacheQuery := question
	if uiPath != "" {
		cacheQuery = "[" + uiPath + "] " + question
	}

	if entry, err := s.cache.Check(ctx, cacheQuery); err != nil {
		slog.Warn("cache check failed, treating as miss", "error", err)
	} else if entry != nil {
		slog.Debug("cache hit", "hits", entry.HitCount)
		return &Response{
			Answer:      entry.Response,
			Sources:     []Source{},
			Confidence:  confidenceFromLabel(entry.Confidence),
			Cached:      true,
			ModulesUsed: entry.ModulesUsed,
		}, nil
	}

	embedding, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, errEmbeddingFailed(err)
	}

	moduleIDs := s.detectModules(ctx, question, embedding, uiPath)

	chunks, err := s.retriever.Retrieve(ctx, embedding, moduleIDs)
	if err != nil {
		return nil, errInternal(fmt.Errorf("retrieving chunks: %w", err))
	}
	// Module-filtered search that finds nothing falls back to an
	// unfiltered search; the threshold is never relaxed.
	if len(chunks) == 0 && len(moduleIDs) > 0 {
		slog.Debug("module-filtered retrieval empty, retrying unfiltered", "modules", moduleIDs)
		chunks, err = s.retriever.Retrieve(ctx, embedding, nil)
		if err != nil {
			return nil, errInternal(fmt.Errorf("retrieving chunks unfiltered: %w", err))
		}
	}

	chunks = dedupe.Deduplicate(chunks, s.opts.JaccardThreshold)

	var memoryText string
	if mem, err := s.memory.Load(ctx, req.SessionID); err != nil {
		slog.Warn("memory load failed, continuing without history", "session", req.SessionID, "error", err)
	} else {
		memoryText = memory.Format(mem)
	}

	capabilityText := capability.Render(moduleIDs)

	messages := s.assembler.Assemble(question, chunks, memoryText, capabilityText, uiPath)

	answer, tokenUsage, err := s.completer.Complete(ctx, messages, s.opts.Temperature, s.opts.MaxAnswerTokens)
	if err != nil {
		if errors.Is(err, provider.ErrRateLimited) {
			return nil, errRateLimited(err)
		}
		return nil, errModelFailed(err)
	}

	resp := s.finalize(ctx, req, cacheQuery, question, answer, chunks, moduleIDs)

	if s.usage != nil {
		s.usage.Record(req.UserID, tokenUsage)
	}

	return resp, nil
}

// detectModules merges path-derived modules (highest priority, always
// included) with keyword+embedding detections, deduplicated by id with
// path modules first.
func (s *Service) detectModules(ctx context.Context, question string, embedding []float32, uiPath string) []string {
	var ids []string
	seen := make(map[string]bool)

	if uiPath != "" {
		if id, ok := catalog.FromPath(uiPath); ok {
			ids = append(ids, id)
			seen[id] = true
		}
	}

	for _, det := range s.detector.Detect(ctx, question, embedding) {
		if !seen[det.ModuleID] {
			ids = append(ids, det.ModuleID)
			seen[det.ModuleID] = true
		}
	}
	return ids
}

// finalize derives the confidence label and source list, then performs the
// best-effort write-backs. Neither write failure reaches the caller.
func (s *Service) finalize(ctx context.Context, req Request, cacheQuery, question, answer string, chunks []retrieval.RetrievedChunk, moduleIDs []string) *Response {
	confidence := deriveConfidence(chunks)
	sources := extractSources(chunks)

	chunkIDs := make([]int64, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}

	if err := s.cache.Save(ctx, cacheQuery, answer, moduleIDs, chunkIDs, string(confidence)); err != nil {
		slog.Warn("cache save failed, response unaffected", "error", err)
	}

	activeModule := ""
	if len(moduleIDs) > 0 {
		activeModule = moduleIDs[0]
	}
	if err := s.memory.Update(ctx, req.SessionID, req.UserID, question, answer, activeModule); err != nil {
		slog.Warn("memory update failed, response unaffected", "session", req.SessionID, "error", err)
	}

	if moduleIDs == nil {
		moduleIDs = []string{}
	}
	return &Response{
		Answer:      answer,
		Sources:     sources,
		Confidence:  confidence,
		Cached:      false,
		ModulesUsed: moduleIDs,
	}
}

// deriveConfidence maps the mean similarity of the final chunk set to a
// coarse label.
func deriveConfidence(chunks []retrieval.RetrievedChunk) Confidence {
	if len(chunks) == 0 {
		return ConfidenceNone
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Similarity
	}
	mean := sum / float64(len(chunks))
	switch {
	case mean >= 0.75:
		return ConfidenceHigh
	case mean >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// extractSources returns one source per distinct module+file combination,
// in chunk order.
func extractSources(chunks []retrieval.RetrievedChunk) []Source {
	sources := []Source{}
	seen := make(map[string]bool)
	for _, c := range chunks {
		key := c.ModuleID + "\x00" + c.FilePath
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, Source{
			Module:    c.ModuleID,
			Submodule: c.SubmoduleID,
			Heading:   c.Heading,
			FilePath:  c.FilePath,
		})
	}
	return sources
}

func confidenceFromLabel(label string) Confidence {
	switch Confidence(label) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone:
		return Confidence(label)
	default:
		return ConfidenceNone
	}
}
