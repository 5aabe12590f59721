// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/kweiler/clipscribe/pkg/media"
	"github.com/kweiler/clipscribe/pkg/provider/asr"
)

// Compile-time assertion that NativeProvider satisfies asr.Provider.
var _ asr.Provider = (*NativeProvider)(nil)

// NativeProvider implements asr.Provider using the whisper.cpp Go bindings
// (CGO). The model is loaded once at startup and shared across all
// transcriptions; each Transcribe call runs on its own whisper context
// because contexts are not thread-safe.
type NativeProvider struct {
	language string

	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "zh"). Defaults to "auto".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: "auto",
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		err := p.model.Close()
		p.model = nil
		return err
	}
	return nil
}

// Transcribe implements asr.Provider. The file at path must be a 16 kHz
// PCM WAV; use mediautil.ExtractAudio to normalize arbitrary input first.
func (p *NativeProvider) Transcribe(ctx context.Context, path string) (media.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	samples, err := readWAVMono16k(path)
	if err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: read %q: %w", path, err)
	}

	p.mu.Lock()
	model := p.model
	p.mu.Unlock()
	if model == nil {
		return media.Transcript{}, errors.New("whisper: provider is closed")
	}

	// Each inference gets a fresh context; the model itself is shared.
	wctx, err := model.NewContext()
	if err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: set language %q: %w", p.language, err)
	}
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segments []media.Segment
	for {
		if err := ctx.Err(); err != nil {
			return media.Transcript{}, err
		}
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return media.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}

		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, media.Segment{
			Text:  text,
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Words: tokensToWords(seg.Tokens),
		})
	}

	media.AnnotatePauses(segments)
	return media.Transcript{Segments: segments}, nil
}

// tokensToWords groups whisper tokens into words. A token starting with a
// space (or following punctuation-only output) opens a new word; special
// tokens like "[_BEG_]" are skipped.
func tokensToWords(tokens []whisperlib.Token) []media.Word {
	var words []media.Word
	for _, tok := range tokens {
		if isSpecialToken(tok.Text) {
			continue
		}
		trimmed := strings.TrimSpace(tok.Text)
		if trimmed == "" {
			continue
		}

		startsWord := strings.HasPrefix(tok.Text, " ") || len(words) == 0
		if startsWord {
			words = append(words, media.Word{
				Text:  trimmed,
				Start: tok.Start.Seconds(),
				End:   tok.End.Seconds(),
			})
			continue
		}

		// Continuation token: glue onto the previous word.
		last := &words[len(words)-1]
		last.Text += trimmed
		last.End = tok.End.Seconds()
	}
	return words
}

func isSpecialToken(text string) bool {
	return strings.HasPrefix(text, "[_") && strings.HasSuffix(text, "]")
}
