// Package llm defines the Provider interface for the language model
// backends used to optimize transcripts.
//
// A provider wraps a remote or local model API (e.g., OpenAI, or anything
// reachable through any-llm-go) and exposes a single-shot completion
// interface. Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the backend. Counts
// are in the model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries one prompt for the model.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction. Providers
	// without a dedicated system channel prepend it as a system-role
	// message.
	SystemPrompt string

	// Prompt is the user message driving the response. Must not be empty.
	Prompt string

	// Temperature controls output randomness in [0.0, 2.0]. 0 requests the
	// provider default.
	Temperature float64

	// MaxTokens caps the completion length. 0 means provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
//
// Complete must propagate ctx cancellation promptly.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
