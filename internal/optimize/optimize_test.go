package optimize_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kweiler/clipscribe/internal/optimize"
	"github.com/kweiler/clipscribe/pkg/media"
	llmmock "github.com/kweiler/clipscribe/pkg/provider/llm/mock"
)

func inputWords() []media.Word {
	return []media.Word{
		{Text: "so", Start: 0, End: 0.2},
		{Text: "uh", Start: 0.2, End: 0.5},
		{Text: "[0.300 sec]", Start: 0.5, End: 0.8},
		{Text: "we", Start: 0.8, End: 1.0},
		{Text: "shipped", Start: 1.0, End: 1.6},
	}
}

func TestOptimizeKeepsTimestamps(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []string{
		`[{"word":"so"},{"word":"we"},{"word":"shipped"}]`,
	}}
	o := optimize.New(provider)

	out, err := o.Optimize(context.Background(), inputWords())
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d words, want 3", len(out))
	}
	// Survivors carry their original intervals.
	if out[1].Text != "we" || out[1].Start != 0.8 || out[1].End != 1.0 {
		t.Errorf("word 1 = %+v, want we with [0.8, 1.0)", out[1])
	}

	// The prompt carried the full structured sequence, gap markers included.
	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("model called %d times, want 1", len(reqs))
	}
	if !strings.Contains(reqs[0].Prompt, `{"word":"[0.300 sec]"}`) {
		t.Error("prompt does not contain the gap marker entry")
	}
}

func TestOptimizeParsesFencedReply(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []string{
		"Sure, here is the cleaned sequence:\n```json\n[{\"word\":\"so\"},{\"word\":\"we\"}]\n```\nDone.",
	}}
	o := optimize.New(provider)

	out, err := o.Optimize(context.Background(), inputWords())
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(out) != 2 || out[0].Text != "so" || out[1].Text != "we" {
		t.Errorf("out = %+v, want so, we", out)
	}
}

func TestOptimizeIgnoresInventedWords(t *testing.T) {
	t.Parallel()

	// "fixed" never appeared in the input, so it cannot match anything.
	provider := &llmmock.Provider{Responses: []string{
		`[{"word":"so"},{"word":"fixed"}]`,
	}}
	o := optimize.New(provider)

	out, err := o.Optimize(context.Background(), inputWords())
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(out) != 1 || out[0].Text != "so" {
		t.Errorf("out = %+v, want just so", out)
	}
}

func TestOptimizeRejectsProseReply(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []string{"I cannot help with that."}}
	o := optimize.New(provider)

	if _, err := o.Optimize(context.Background(), inputWords()); err == nil {
		t.Error("Optimize accepted a reply without a JSON array")
	}
}

func TestOptimizeEmptyInputSkipsModel(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Err: errors.New("must not be called")}
	o := optimize.New(provider)

	out, err := o.Optimize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("got %d words, want 0", len(out))
	}
	if len(provider.Requests()) != 0 {
		t.Error("model was called for empty input")
	}
}

func TestOptimizePropagatesProviderError(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Err: errors.New("backend down")}
	o := optimize.New(provider)

	if _, err := o.Optimize(context.Background(), inputWords()); err == nil {
		t.Error("Optimize swallowed the provider error")
	}
}

func TestLenientAlignmentToleratesTypo(t *testing.T) {
	t.Parallel()

	words := []media.Word{
		{Text: "shipped", Start: 0, End: 1},
		{Text: "today", Start: 1, End: 2},
	}
	provider := &llmmock.Provider{Responses: []string{
		`[{"word":"shippd"},{"word":"today"}]`,
	}}

	// Strict alignment never matches the typo, so the walk stalls on it
	// and drops everything.
	strict := optimize.New(provider)
	out, err := strict.Optimize(context.Background(), words)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("strict alignment kept %d words, want 0", len(out))
	}

	lenient := optimize.New(provider, optimize.WithLenientAlignment())
	out, err = lenient.Optimize(context.Background(), words)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("lenient alignment kept %d words, want 2", len(out))
	}
}
