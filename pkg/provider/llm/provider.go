// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI, xAI Grok,
// Anthropic Claude, or a local Ollama instance) and exposes a uniform
// completion interface for the analysis engine without coupling to any
// specific SDK. The engine issues two kinds of calls: structured analysis
// passes that require a JSON object response, and plain-text compression
// passes for rolling summaries.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// completion arrives. A nil error implies a non-nil response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
