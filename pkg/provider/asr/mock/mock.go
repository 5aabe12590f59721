// Package mock provides a canned asr.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/kweiler/clipscribe/pkg/media"
	"github.com/kweiler/clipscribe/pkg/provider/asr"
)

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Provider returns a fixed transcript (or error) and records every path it
// was asked to transcribe. Safe for concurrent use.
type Provider struct {
	Result media.Transcript
	Err    error

	mu    sync.Mutex
	paths []string
}

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, path string) (media.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return media.Transcript{}, err
	}
	p.mu.Lock()
	p.paths = append(p.paths, path)
	p.mu.Unlock()
	if p.Err != nil {
		return media.Transcript{}, p.Err
	}
	return p.Result.Clone(), nil
}

// Close implements asr.Provider.
func (p *Provider) Close() error { return nil }

// Paths returns every path passed to Transcribe, in order.
func (p *Provider) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}
