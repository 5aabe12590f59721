package resilience

import (
	"context"
	"errors"

	"github.com/kweiler/clipscribe/pkg/media"
	"github.com/kweiler/clipscribe/pkg/provider/asr"
	"github.com/kweiler/clipscribe/pkg/provider/llm"
)

// ASRFailover implements [asr.Provider] with automatic failover across
// multiple recognition backends. Each backend has its own circuit breaker;
// when the primary fails or its breaker is open, the next healthy fallback
// is tried.
type ASRFailover struct {
	group *FallbackGroup[asr.Provider]
}

var _ asr.Provider = (*ASRFailover)(nil)

// NewASRFailover creates an [ASRFailover] with primary as the preferred
// backend.
func NewASRFailover(primary asr.Provider, primaryName string, cfg FallbackConfig) *ASRFailover {
	return &ASRFailover{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional recognition backend.
func (f *ASRFailover) AddFallback(name string, provider asr.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs the first healthy backend over the given media file.
func (f *ASRFailover) Transcribe(ctx context.Context, path string) (media.Transcript, error) {
	return ExecuteWithResult(f.group, func(p asr.Provider) (media.Transcript, error) {
		return p.Transcribe(ctx, path)
	})
}

// Close closes every registered backend and joins their errors.
func (f *ASRFailover) Close() error {
	var errs []error
	f.group.Each(func(name string, p asr.Provider) {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// LLMFailover implements [llm.Provider] with automatic failover across
// multiple completion backends.
type LLMFailover struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFailover)(nil)

// NewLLMFailover creates an [LLMFailover] with primary as the preferred
// backend.
func NewLLMFailover(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFailover {
	return &LLMFailover{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional completion backend.
func (f *LLMFailover) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy backend.
func (f *LLMFailover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
