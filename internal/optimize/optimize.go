// Package optimize tightens a transcript's word sequence with an LLM.
//
// The model receives the words as a structured JSON array and may only
// delete whole entries: no rewording, no merging, no reordering. The reply
// is aligned back against the original sequence, so every surviving word
// keeps its original timestamps and a hallucinated reply degrades into a
// smaller (never corrupted) sequence.
package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/kweiler/clipscribe/pkg/media"
	"github.com/kweiler/clipscribe/pkg/provider/llm"
)

const systemPrompt = "You are a helpful assistant."

const promptHeader = `You are a video editing assistant. Below is the structured ASR result; each element carries exactly one field:
- word: the text content (a single character or a short phrase)
Your task: compose the words into a fluent, concise passage. You may only delete whole entries. Never add, never rewrite, never reorder, never merge multiple entries into one, never split one entry into several.
Every entry is kept or dropped as a whole; its content must not change.
Return strictly the JSON array of entries you keep, in the input format, with no extra commentary.
Example input: [{"word":"so"},{"word":"we"},{"word":"ran"},{"word":"the"},{"word":"code"},{"word":"uh"}]
If "uh" is filler, return: [{"word":"so"},{"word":"we"},{"word":"ran"},{"word":"the"},{"word":"code"}]
Wrong (merged): [{"word":"so we"},{"word":"ran the code"}]
Wrong (split): [{"word":"r"},{"word":"an"}]
Wrong (rewritten): [{"word":"we ran the code"}]
Here is the data to optimize:
`

// wordEntry is the single-field structure exchanged with the model.
type wordEntry struct {
	Word string `json:"word"`
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the optimizer logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(o *Optimizer) { o.log = log }
}

// WithTemperature sets the sampling temperature for the completion.
func WithTemperature(t float64) Option {
	return func(o *Optimizer) { o.temperature = t }
}

// WithLenientAlignment additionally accepts kept words whose edit distance
// to the original is at most 1, for models that slip on long words.
func WithLenientAlignment() Option {
	return func(o *Optimizer) { o.lenient = true }
}

// Optimizer runs the delete-only optimization against an llm.Provider.
// Safe for concurrent use.
type Optimizer struct {
	provider    llm.Provider
	log         *slog.Logger
	temperature float64
	lenient     bool
}

// New creates an Optimizer on top of the given provider.
func New(provider llm.Provider, opts ...Option) *Optimizer {
	o := &Optimizer{
		provider: provider,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize asks the model which words to keep and returns the surviving
// subsequence with original timestamps. An empty input returns an empty
// result without calling the model.
func (o *Optimizer) Optimize(ctx context.Context, words []media.Word) ([]media.Word, error) {
	if len(words) == 0 {
		return nil, nil
	}

	entries := make([]wordEntry, len(words))
	for i, w := range words {
		entries[i] = wordEntry{Word: w.Text}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("optimize: marshal words: %w", err)
	}

	resp, err := o.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Prompt:       promptHeader + string(payload),
		Temperature:  o.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("optimize: completion: %w", err)
	}

	kept, err := parseKeptWords(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("optimize: parse model reply: %w", err)
	}

	result := o.align(kept, words)
	o.log.Info("transcript optimized",
		"input_words", len(words),
		"kept_words", len(result),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return result, nil
}

// fencedJSONRe captures a JSON array inside a ```json ... ``` fence.
var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*\\])\\s*```")

// bracketJSONRe captures the first bracketed array anywhere in the text.
var bracketJSONRe = regexp.MustCompile(`(?s)\[.*\]`)

// extractJSON pulls the JSON array out of a model reply that may wrap it
// in a code fence or surround it with prose.
func extractJSON(text string) string {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := bracketJSONRe.FindString(text); m != "" {
		return m
	}
	return strings.TrimSpace(text)
}

func parseKeptWords(reply string) ([]string, error) {
	var entries []wordEntry
	raw := extractJSON(reply)
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("reply is not a structured word array: %w", err)
	}
	kept := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Word == "" {
			return nil, fmt.Errorf("reply entry is missing the word field")
		}
		kept = append(kept, e.Word)
	}
	return kept, nil
}

// align walks the original sequence once and keeps every word that matches
// the model's next kept word. Order is preserved by construction; words
// the model dropped, reordered, or invented simply do not match and fall
// away.
func (o *Optimizer) align(kept []string, orig []media.Word) []media.Word {
	result := make([]media.Word, 0, len(kept))
	j := 0
	for _, w := range orig {
		if j >= len(kept) {
			break
		}
		if o.matches(w.Text, kept[j]) {
			result = append(result, w)
			j++
		}
	}
	return result
}

func (o *Optimizer) matches(orig, kept string) bool {
	if orig == kept {
		return true
	}
	if !o.lenient || media.IsGapMarker(orig) {
		return false
	}
	if utf8.RuneCountInString(orig) < 4 {
		return false
	}
	return matchr.DamerauLevenshtein(orig, kept) <= 1
}
