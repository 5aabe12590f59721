// Package whisperx provides an asr.Provider that shells out to the
// WhisperX CLI. WhisperX runs whisper with forced alignment, so its word
// timestamps are considerably tighter than raw whisper token timings.
//
// The CLI writes a JSON result next to the input file; timestamps in that
// file are decoded as decimals to avoid accumulating float parsing error
// before the final conversion to seconds.
package whisperx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kweiler/clipscribe/pkg/media"
	"github.com/kweiler/clipscribe/pkg/provider/asr"
)

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Provider implements asr.Provider by invoking the whisperx executable.
type Provider struct {
	binary   string
	language string
	log      *slog.Logger
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBinary overrides the whisperx executable path. Defaults to
// "whisperx" resolved via PATH.
func WithBinary(path string) Option {
	return func(p *Provider) { p.binary = path }
}

// WithLanguage sets the transcription language hint.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithLogger sets the logger used for CLI output. Defaults to
// slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// New creates a whisperx Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		binary: "whisperx",
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Close implements asr.Provider. Each Transcribe call owns its subprocess,
// so there is nothing to release here.
func (p *Provider) Close() error { return nil }

// result mirrors the JSON file whisperx writes next to the input.
type result struct {
	Segments []struct {
		Text  string          `json:"text"`
		Start decimal.Decimal `json:"start"`
		End   decimal.Decimal `json:"end"`
		Words []struct {
			Word  string           `json:"word"`
			Start *decimal.Decimal `json:"start"`
			End   *decimal.Decimal `json:"end"`
		} `json:"words"`
	} `json:"segments"`
}

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, path string) (media.Transcript, error) {
	outDir, err := os.MkdirTemp("", "whisperx-*")
	if err != nil {
		return media.Transcript{}, fmt.Errorf("whisperx: create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{path, "--output_format", "json", "--output_dir", outDir}
	if p.language != "" {
		args = append(args, "--language", p.language)
	}
	cmd := exec.CommandContext(ctx, p.binary, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return media.Transcript{}, fmt.Errorf("whisperx: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return media.Transcript{}, fmt.Errorf("whisperx: start %q: %w", p.binary, err)
	}
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			p.log.Debug("whisperx", "output", scanner.Text())
		}
	}()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return media.Transcript{}, ctxErr
		}
		return media.Transcript{}, fmt.Errorf("whisperx: run: %w", err)
	}

	base := filepath.Base(path)
	resultPath := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".json")
	f, err := os.Open(resultPath)
	if err != nil {
		return media.Transcript{}, fmt.Errorf("whisperx: open result: %w", err)
	}
	defer f.Close()

	var res result
	if err := json.NewDecoder(f).Decode(&res); err != nil {
		return media.Transcript{}, fmt.Errorf("whisperx: decode result: %w", err)
	}
	return convert(res)
}

// convert maps a whisperx result to the transcript model. Words that
// whisperx could not align carry no timestamps; they inherit interpolated
// positions between their aligned neighbours so every word keeps a valid
// half-open interval.
func convert(res result) (media.Transcript, error) {
	segments := make([]media.Segment, 0, len(res.Segments))
	for _, seg := range res.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segStart, _ := seg.Start.Float64()
		segEnd, _ := seg.End.Float64()
		if segEnd < segStart {
			return media.Transcript{}, errors.New("whisperx: segment end precedes start")
		}

		s := media.Segment{Text: text, Start: segStart, End: segEnd}
		prevEnd := segStart
		for _, w := range seg.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			start, end := prevEnd, segEnd
			if w.Start != nil {
				start, _ = w.Start.Float64()
			}
			if w.End != nil {
				end, _ = w.End.Float64()
			}
			if end < start {
				end = start
			}
			s.Words = append(s.Words, media.Word{Text: word, Start: start, End: end})
			prevEnd = end
		}
		segments = append(segments, s)
	}

	media.AnnotatePauses(segments)
	return media.Transcript{Segments: segments}, nil
}
