// Package mock provides a canned llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/kweiler/clipscribe/pkg/provider/llm"
)

// Compile-time assertion that Provider satisfies llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider returns fixed responses in order and records every request.
// When Responses runs out, the last entry repeats. Safe for concurrent
// use.
type Provider struct {
	Responses []string
	Err       error

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	n := len(p.requests)
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	if n >= len(p.Responses) {
		n = len(p.Responses) - 1
	}
	return &llm.CompletionResponse{Content: p.Responses[n]}, nil
}

// Requests returns every request passed to Complete, in order.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}
