package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agendia/assistant/internal/cache"
	"github.com/agendia/assistant/internal/detect"
	"github.com/agendia/assistant/internal/memory"
	"github.com/agendia/assistant/internal/prompt"
	"github.com/agendia/assistant/internal/provider"
	"github.com/agendia/assistant/internal/retrieval"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeCompleter struct {
	answer   string
	usage    provider.Usage
	err      error
	messages []provider.Message
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []provider.Message, temperature float64, maxTokens int) (string, provider.Usage, error) {
	f.messages = messages
	if f.err != nil {
		return "", provider.Usage{}, f.err
	}
	return f.answer, f.usage, nil
}

type fakeDetector struct {
	detected []detect.Detected
}

func (f *fakeDetector) Detect(ctx context.Context, question string, embedding []float32) []detect.Detected {
	return f.detected
}

type fakeRetriever struct {
	filtered   []retrieval.RetrievedChunk
	unfiltered []retrieval.RetrievedChunk
	err        error
	calls      [][]string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, embedding []float32, moduleIDs []string) ([]retrieval.RetrievedChunk, error) {
	f.calls = append(f.calls, moduleIDs)
	if f.err != nil {
		return nil, f.err
	}
	if len(moduleIDs) > 0 {
		return f.filtered, nil
	}
	return f.unfiltered, nil
}

type fakeMemory struct {
	mem       *memory.Memory
	loadErr   error
	updateErr error
	updated   bool
	active    string
}

func (f *fakeMemory) Load(ctx context.Context, sessionID string) (*memory.Memory, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.mem, nil
}

func (f *fakeMemory) Update(ctx context.Context, sessionID, userID, userMsg, assistantMsg, activeModule string) error {
	f.updated = true
	f.active = activeModule
	return f.updateErr
}

type fakeCache struct {
	entry      *cache.Entry
	checkErr   error
	saveErr    error
	savedQuery string
	savedConf  string
	saved      bool
}

func (f *fakeCache) Check(ctx context.Context, query string) (*cache.Entry, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return f.entry, nil
}

func (f *fakeCache) Save(ctx context.Context, query, response string, modulesUsed []string, chunkIDs []int64, confidence string) error {
	f.saved = true
	f.savedQuery = query
	f.savedConf = confidence
	return f.saveErr
}

type fakeUsage struct {
	accountID string
	usage     provider.Usage
}

func (f *fakeUsage) Record(accountID string, u provider.Usage) {
	f.accountID = accountID
	f.usage = u
}

func chunk(id int64, moduleID, filePath string, sim float64) retrieval.RetrievedChunk {
	return retrieval.RetrievedChunk{
		DocumentChunk: retrieval.DocumentChunk{
			ID:       id,
			Content:  "contenido " + filePath,
			ModuleID: moduleID,
			FilePath: filePath,
			Heading:  "Sección",
		},
		Similarity: sim,
	}
}

type fixture struct {
	svc       *Service
	embedder  *fakeEmbedder
	completer *fakeCompleter
	detector  *fakeDetector
	retriever *fakeRetriever
	memory    *fakeMemory
	cache     *fakeCache
	usage     *fakeUsage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		embedder: &fakeEmbedder{},
		completer: &fakeCompleter{
			answer: "Para cerrar un horario, ve a Configuración → Horarios.",
			usage:  provider.Usage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
		},
		detector: &fakeDetector{detected: []detect.Detected{
			{ModuleID: "schedules", Name: "Horarios", Confidence: 0.8, Source: detect.SourceHybrid},
		}},
		retriever: &fakeRetriever{
			filtered: []retrieval.RetrievedChunk{
				chunk(1, "schedules", "schedules/cerrar.md", 0.82),
				chunk(2, "schedules", "schedules/editar.md", 0.7),
			},
		},
		memory: &fakeMemory{},
		cache:  &fakeCache{},
		usage:  &fakeUsage{},
	}
	f.svc = NewService(
		f.embedder, f.completer, f.detector, f.retriever,
		f.memory, f.cache, f.usage,
		prompt.New(prompt.Budgets{Capabilities: 600, Memory: 400, Docs: 2000, Question: 256}),
		Options{MaxQuestionTokens: 256, JaccardThreshold: 0.8, Temperature: 0.2, MaxAnswerTokens: 700},
	)
	return f
}

func TestAskFullFlow(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Ask(context.Background(), Request{
		Question:  "¿Cómo cierro un horario?",
		SessionID: "sess-1",
		UserID:    "acct-1",
		UIContext: &UIContext{CurrentPath: "/schedules"},
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Cached {
		t.Error("Cached = true, want false")
	}
	if resp.Answer != f.completer.answer {
		t.Errorf("Answer = %q, want %q", resp.Answer, f.completer.answer)
	}
	if resp.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %q, want high (mean 0.76)", resp.Confidence)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("len(Sources) = %d, want 2", len(resp.Sources))
	}
	if resp.Sources[0].FilePath != "schedules/cerrar.md" {
		t.Errorf("Sources[0].FilePath = %q", resp.Sources[0].FilePath)
	}
	if len(resp.ModulesUsed) != 1 || resp.ModulesUsed[0] != "schedules" {
		t.Errorf("ModulesUsed = %v, want [schedules]", resp.ModulesUsed)
	}
	if !f.cache.saved {
		t.Error("answer was not cached")
	}
	if want := "[/schedules] ¿Cómo cierro un horario?"; f.cache.savedQuery != want {
		t.Errorf("cached query = %q, want %q", f.cache.savedQuery, want)
	}
	if f.cache.savedConf != "high" {
		t.Errorf("cached confidence = %q, want high", f.cache.savedConf)
	}
	if !f.memory.updated {
		t.Error("memory was not updated")
	}
	if f.memory.active != "schedules" {
		t.Errorf("active module = %q, want schedules", f.memory.active)
	}
	if f.usage.accountID != "acct-1" || f.usage.usage.TotalTokens != 140 {
		t.Errorf("usage = (%q, %+v)", f.usage.accountID, f.usage.usage)
	}
}

func TestAskPathModuleComesFirst(t *testing.T) {
	f := newFixture(t)
	f.detector.detected = []detect.Detected{
		{ModuleID: "billing", Name: "Facturación", Confidence: 0.9, Source: detect.SourceKeyword},
		{ModuleID: "appointments", Name: "Citas", Confidence: 0.6, Source: detect.SourceEmbedding},
	}

	resp, err := f.svc.Ask(context.Background(), Request{
		Question:  "¿Puedo cobrar una cita?",
		SessionID: "sess-1",
		UIContext: &UIContext{CurrentPath: "/appointments/123"},
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	want := []string{"appointments", "billing"}
	if len(resp.ModulesUsed) != len(want) {
		t.Fatalf("ModulesUsed = %v, want %v", resp.ModulesUsed, want)
	}
	for i := range want {
		if resp.ModulesUsed[i] != want[i] {
			t.Errorf("ModulesUsed[%d] = %q, want %q", i, resp.ModulesUsed[i], want[i])
		}
	}
}

func TestAskBlockedActionQuestionFromAppointmentsScreen(t *testing.T) {
	f := newFixture(t)
	f.detector.detected = []detect.Detected{
		{ModuleID: "schedules", Name: "Horarios", Confidence: 0.7, Source: detect.SourceHybrid},
	}

	resp, err := f.svc.Ask(context.Background(), Request{
		Question:  "¿Puedo cerrar un horario con reservas activas?",
		SessionID: "sess-9",
		UIContext: &UIContext{CurrentPath: "/appointments"},
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Cached {
		t.Error("Cached = true on a cold cache")
	}
	found := false
	for _, m := range resp.ModulesUsed {
		if m == "appointments" {
			found = true
		}
	}
	if !found {
		t.Errorf("ModulesUsed = %v, want appointments included", resp.ModulesUsed)
	}
	if f.completer.messages == nil {
		t.Error("model was never called")
	}
}

func TestAskCacheHitSkipsProviders(t *testing.T) {
	f := newFixture(t)
	f.cache.entry = &cache.Entry{
		Response:    "Respuesta cacheada.",
		ModulesUsed: []string{"schedules"},
		Confidence:  "medium",
		HitCount:    3,
	}

	resp, err := f.svc.Ask(context.Background(), Request{Question: "¿Cómo cierro un horario?", SessionID: "s"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !resp.Cached {
		t.Error("Cached = false, want true")
	}
	if resp.Answer != "Respuesta cacheada." {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if resp.Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %q, want medium", resp.Confidence)
	}
	if resp.Sources == nil || len(resp.Sources) != 0 {
		t.Errorf("Sources = %v, want empty non-nil slice", resp.Sources)
	}
	if f.embedder.calls != 0 {
		t.Errorf("embedder called %d times on a cache hit", f.embedder.calls)
	}
	if f.memory.updated {
		t.Error("memory updated on a cache hit")
	}
}

func TestAskCacheCheckFailureIsAMiss(t *testing.T) {
	f := newFixture(t)
	f.cache.checkErr = errors.New("disk full")

	resp, err := f.svc.Ask(context.Background(), Request{Question: "¿Cómo cierro un horario?", SessionID: "s"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Cached {
		t.Error("Cached = true after a failed cache check")
	}
	if f.embedder.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", f.embedder.calls)
	}
}

func TestAskValidation(t *testing.T) {
	tests := []struct {
		name     string
		question string
		wantKind Kind
	}{
		{"empty", "", KindEmptyQuestion},
		{"whitespace only", "   \t\n", KindEmptyQuestion},
		{"too long", strings.Repeat("palabra ", 200), KindQuestionTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Ask(context.Background(), Request{Question: tt.question, SessionID: "s"})
			if err == nil {
				t.Fatal("Ask() error = nil")
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(err) = %q, want %q", got, tt.wantKind)
			}
			if f.embedder.calls != 0 {
				t.Error("embedder called for an invalid question")
			}
		})
	}
}

func TestAskEmbeddingFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = errors.New("connection refused")

	_, err := f.svc.Ask(context.Background(), Request{Question: "¿Cómo creo una cita?", SessionID: "s"})
	if got := KindOf(err); got != KindEmbeddingFailed {
		t.Errorf("KindOf(err) = %q, want %q", got, KindEmbeddingFailed)
	}
}

func TestAskModelFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
	}{
		{"generic failure", errors.New("bad gateway"), KindModelFailed},
		{"rate limited", provider.ErrRateLimited, KindRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.completer.err = tt.err
			_, err := f.svc.Ask(context.Background(), Request{Question: "¿Cómo creo una cita?", SessionID: "s"})
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(err) = %q, want %q", got, tt.wantKind)
			}
			if f.cache.saved {
				t.Error("failed answer was cached")
			}
			if f.memory.updated {
				t.Error("failed answer was written to memory")
			}
		})
	}
}

func TestAskUnfilteredFallback(t *testing.T) {
	f := newFixture(t)
	f.retriever.filtered = nil
	f.retriever.unfiltered = []retrieval.RetrievedChunk{
		chunk(9, "settings", "settings/general.md", 0.5),
	}

	resp, err := f.svc.Ask(context.Background(), Request{Question: "¿Dónde cambio el idioma?", SessionID: "s"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(f.retriever.calls) != 2 {
		t.Fatalf("retriever calls = %d, want 2 (filtered then unfiltered)", len(f.retriever.calls))
	}
	if f.retriever.calls[1] != nil {
		t.Errorf("second call moduleIDs = %v, want nil", f.retriever.calls[1])
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Module != "settings" {
		t.Errorf("Sources = %v", resp.Sources)
	}
	if resp.Confidence != ConfidenceLow {
		t.Errorf("Confidence = %q, want low", resp.Confidence)
	}
}

func TestAskNoChunksNoConfidence(t *testing.T) {
	f := newFixture(t)
	f.detector.detected = nil
	f.retriever.filtered = nil
	f.retriever.unfiltered = nil

	resp, err := f.svc.Ask(context.Background(), Request{Question: "¿Qué tiempo hace hoy?", SessionID: "s"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Confidence != ConfidenceNone {
		t.Errorf("Confidence = %q, want none", resp.Confidence)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", resp.Sources)
	}
	if len(f.retriever.calls) != 1 {
		t.Errorf("retriever calls = %d, want 1 (no module filter to fall back from)", len(f.retriever.calls))
	}
}

func TestAskWriteBackFailuresDoNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.cache.saveErr = errors.New("disk full")
	f.memory.updateErr = errors.New("disk full")

	resp, err := f.svc.Ask(context.Background(), Request{Question: "¿Cómo cierro un horario?", SessionID: "s"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer == "" {
		t.Error("empty answer despite successful model call")
	}
}

func TestAskMemoryLoadFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.memory.loadErr = errors.New("corrupt row")

	resp, err := f.svc.Ask(context.Background(), Request{Question: "¿Cómo cierro un horario?", SessionID: "s"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Cached {
		t.Error("unexpected cache hit")
	}
}

func TestAskRetrievalErrorIsInternal(t *testing.T) {
	f := newFixture(t)
	f.retriever.err = errors.New("database locked")

	_, err := f.svc.Ask(context.Background(), Request{Question: "¿Cómo cierro un horario?", SessionID: "s"})
	if got := KindOf(err); got != KindInternal {
		t.Errorf("KindOf(err) = %q, want %q", got, KindInternal)
	}
}

func TestDeriveConfidence(t *testing.T) {
	tests := []struct {
		name string
		sims []float64
		want Confidence
	}{
		{"no chunks", nil, ConfidenceNone},
		{"high", []float64{0.8, 0.75}, ConfidenceHigh},
		{"medium", []float64{0.7, 0.55}, ConfidenceMedium},
		{"low", []float64{0.5, 0.45}, ConfidenceLow},
		{"boundary high", []float64{0.75}, ConfidenceHigh},
		{"boundary medium", []float64{0.6}, ConfidenceMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := make([]retrieval.RetrievedChunk, len(tt.sims))
			for i, s := range tt.sims {
				chunks[i] = chunk(int64(i), "m", "f", s)
			}
			if got := deriveConfidence(chunks); got != tt.want {
				t.Errorf("deriveConfidence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractSourcesDeduplicates(t *testing.T) {
	chunks := []retrieval.RetrievedChunk{
		chunk(1, "schedules", "schedules/cerrar.md", 0.8),
		chunk(2, "schedules", "schedules/cerrar.md", 0.7),
		chunk(3, "billing", "schedules/cerrar.md", 0.6),
	}
	sources := extractSources(chunks)
	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}
	if sources[0].Module != "schedules" || sources[1].Module != "billing" {
		t.Errorf("sources = %v", sources)
	}
}
