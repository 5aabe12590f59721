// Package whisper provides asr.Provider implementations backed by
// whisper.cpp: NativeProvider links the library directly via CGO, and
// ServerProvider talks to a running whisper.cpp server over HTTP.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kweiler/clipscribe/pkg/media"
	"github.com/kweiler/clipscribe/pkg/provider/asr"
)

// Compile-time assertion that ServerProvider satisfies asr.Provider.
var _ asr.Provider = (*ServerProvider)(nil)

// ServerProvider implements asr.Provider against the whisper.cpp server's
// /inference endpoint using the OpenAI-compatible verbose_json response
// format.
type ServerProvider struct {
	baseURL  string
	language string
	client   *http.Client
}

// ServerOption is a functional option for configuring a ServerProvider.
type ServerOption func(*ServerProvider)

// WithServerLanguage sets the transcription language hint. Defaults to
// "auto".
func WithServerLanguage(lang string) ServerOption {
	return func(p *ServerProvider) { p.language = lang }
}

// WithServerTimeout sets the per-request HTTP timeout. Defaults to 5
// minutes; whisper inference on long files is slow.
func WithServerTimeout(d time.Duration) ServerOption {
	return func(p *ServerProvider) { p.client.Timeout = d }
}

// NewServer creates a ServerProvider talking to the whisper.cpp server at
// baseURL, e.g. "http://localhost:8080".
func NewServer(baseURL string, opts ...ServerOption) (*ServerProvider, error) {
	if baseURL == "" {
		return nil, errors.New("whisper: baseURL must not be empty")
	}
	p := &ServerProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: "auto",
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close implements asr.Provider. The HTTP client holds no resources worth
// releasing.
func (p *ServerProvider) Close() error { return nil }

// inferenceResponse is the verbose_json payload of the whisper.cpp server.
// Word entries are present when the server runs with word timestamps
// enabled; otherwise each segment is mapped to a single word spanning it.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
	Error string `json:"error"`
}

// Transcribe implements asr.Provider.
func (p *ServerProvider) Transcribe(ctx context.Context, path string) (media.Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: open %q: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: build multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: copy audio: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        p.language,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return media.Transcript{}, fmt.Errorf("whisper: write field %q: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: finish multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/inference", &body)
	if err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	var out inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return media.Transcript{}, fmt.Errorf("whisper: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := out.Error
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return media.Transcript{}, fmt.Errorf("whisper: server returned %d: %s", resp.StatusCode, detail)
	}

	segments := make([]media.Segment, 0, len(out.Segments))
	for _, seg := range out.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		s := media.Segment{Text: text, Start: seg.Start, End: seg.End}
		for _, w := range seg.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			s.Words = append(s.Words, media.Word{Text: word, Start: w.Start, End: w.End})
		}
		if len(s.Words) == 0 {
			// No word timestamps from the server: one word per segment.
			s.Words = []media.Word{{Text: text, Start: seg.Start, End: seg.End}}
		}
		segments = append(segments, s)
	}

	media.AnnotatePauses(segments)
	return media.Transcript{Segments: segments}, nil
}
