// Package pipeline orchestrates one assistant request end to end:
// validation, cache lookup, question embedding, module detection, chunk
// retrieval, deduplication, memory, capability rendering, prompt assembly,
// the model call, and the best-effort write-backs.
package pipeline

// UIContext is the optional navigation context supplied by the caller.
type UIContext struct {
	CurrentPath string `json:"currentPath"`
}

// Request is one incoming question.
type Request struct {
	Question  string     `json:"question"`
	SessionID string     `json:"sessionId"`
	UserID    string     `json:"userId"`
	UIContext *UIContext `json:"uiContext,omitempty"`
}

// Source identifies one distinct module+file combination that grounded the
// answer.
type Source struct {
	Module    string `json:"module"`
	Submodule string `json:"submodule,omitempty"`
	Heading   string `json:"heading,omitempty"`
	FilePath  string `json:"filePath"`
}

// Confidence is the coarse label derived from mean chunk similarity. It is
// not a calibrated probability.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Response is the assistant's answer to one request.
type Response struct {
	Answer      string     `json:"answer"`
	Sources     []Source   `json:"sources"`
	Confidence  Confidence `json:"confidence"`
	Cached      bool       `json:"cached"`
	ModulesUsed []string   `json:"modulesUsed"`
}
