// Package provider holds the HTTP clients for the embedding and
// generative-model services. Both providers speak the OpenAI-compatible
// API and are treated as opaque and replaceable.
package provider

import "errors"

// Message is a chat message in the provider wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage carries the provider's token counters for one completion call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrRateLimited is reported when the provider answered HTTP 429 and the
// client exhausted its backoff retries.
var ErrRateLimited = errors.New("provider rate limited")
