// Package retrieval implements vector-similarity search over indexed
// documentation passages and the token-budgeted retriever on top of it.
package retrieval

// DocType classifies a documentation passage.
type DocType string

const (
	DocTypeOverview   DocType = "overview"
	DocTypeHowTo      DocType = "howto"
	DocTypeCapability DocType = "capability"
	DocTypeLimitation DocType = "limitation"
	DocTypeFAQ        DocType = "faq"
	DocTypeReference  DocType = "reference"
)

// DocumentChunk is one indexed, embedded documentation passage. Chunks are
// written by the offline ingestion job; the query pipeline only reads them.
type DocumentChunk struct {
	ID          int64
	Content     string
	ModuleID    string
	SubmoduleID string
	Section     string
	DocType     DocType
	FilePath    string
	Heading     string
	TokenCount  int
	ChunkIndex  int
	Embedding   []float32
}

// RetrievedChunk pairs a chunk with its similarity to one specific query
// embedding. The score is only meaningful within the request that computed
// it.
type RetrievedChunk struct {
	DocumentChunk
	Similarity float64
}

// ModuleScore is a module-summary similarity result.
type ModuleScore struct {
	ModuleID   string
	Similarity float64
}
