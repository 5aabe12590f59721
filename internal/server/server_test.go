package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kweiler/clipscribe/internal/config"
	"github.com/kweiler/clipscribe/internal/observe"
	"github.com/kweiler/clipscribe/internal/server"
	"github.com/kweiler/clipscribe/internal/session"
	"github.com/kweiler/clipscribe/internal/store/sqlite"
	"github.com/kweiler/clipscribe/pkg/media"
	asrmock "github.com/kweiler/clipscribe/pkg/provider/asr/mock"
	"github.com/kweiler/clipscribe/pkg/provider/llm"
	llmmock "github.com/kweiler/clipscribe/pkg/provider/llm/mock"
)

// testTranscript has a 0.5s pause between its segments, wide enough for gap
// synthesis at the default threshold.
func testTranscript() media.Transcript {
	return media.Transcript{
		Segments: []media.Segment{
			{
				Text: "你好", Start: 0, End: 1,
				Words: []media.Word{{Text: "你好", Start: 0, End: 1}},
			},
			{
				Text: "世界", Start: 1.5, End: 2.5,
				Words: []media.Word{{Text: "世界", Start: 1.5, End: 2.5}},
			},
		},
	}
}

type testServer struct {
	srv *server.Server
	ts  *httptest.Server
	asr *asrmock.Provider
}

func newTestServer(t *testing.T, llmProvider llm.Provider) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	asrProvider := &asrmock.Provider{Result: testTranscript()}
	srv := server.New(server.Config{
		ASR:     asrProvider,
		LLM:     llmProvider,
		Store:   st,
		Metrics: metrics,
		Media:   config.MediaConfig{TmpDir: t.TempDir()},
		Playback: config.PlaybackConfig{
			ResumeDelayMs: 15,
		},
	})
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{srv: srv, ts: ts, asr: asrProvider}
}

// uploadWAV posts content as a multipart "file" part named sample.wav.
func uploadWAV(t *testing.T, url string, content []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "sample.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeTranscript(t *testing.T, resp *http.Response) media.Transcript {
	t.Helper()
	defer resp.Body.Close()

	var tr media.Transcript
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	return tr
}

func TestPing(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := http.Get(s.ts.URL + "/ping")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "pong" {
		t.Errorf("message = %q, want %q", body["message"], "pong")
	}
}

func TestTranscribe_ReturnsTranscriptWithGaps(t *testing.T) {
	s := newTestServer(t, nil)

	resp := uploadWAV(t, s.ts.URL+"/asr", []byte("fake wav bytes"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	tr := decodeTranscript(t, resp)

	if tr.ID == "" {
		t.Error("transcript ID not assigned")
	}
	if len(tr.Segments) != 3 {
		t.Fatalf("segments = %d, want 3 (gap inserted)", len(tr.Segments))
	}
	if !tr.Segments[1].IsGap() {
		t.Errorf("middle segment = %q, want gap marker", tr.Segments[1].Text)
	}
	if got := tr.Segments[1].Text; got != "[0.500 sec]" {
		t.Errorf("gap text = %q, want %q", got, "[0.500 sec]")
	}
}

func TestTranscribe_DeduplicatesByContentHash(t *testing.T) {
	s := newTestServer(t, nil)
	content := []byte("identical bytes")

	first := decodeTranscript(t, uploadWAV(t, s.ts.URL+"/asr", content))
	second := decodeTranscript(t, uploadWAV(t, s.ts.URL+"/asr", content))

	if first.ID == "" || first.ID != second.ID {
		t.Errorf("IDs = %q, %q; want identical non-empty", first.ID, second.ID)
	}
	if got := len(s.asr.Paths()); got != 1 {
		t.Errorf("transcription runs = %d, want 1", got)
	}
}

func TestTranscribe_MissingFilePart(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := http.Post(s.ts.URL+"/asr", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestGetTranscript(t *testing.T) {
	s := newTestServer(t, nil)

	uploaded := decodeTranscript(t, uploadWAV(t, s.ts.URL+"/asr", []byte("bytes")))

	resp, err := http.Get(s.ts.URL + "/transcripts/" + uploaded.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	got := decodeTranscript(t, resp)
	if len(got.Segments) != len(uploaded.Segments) {
		t.Errorf("segments = %d, want %d", len(got.Segments), len(uploaded.Segments))
	}

	resp, err = http.Get(s.ts.URL + "/transcripts/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestTranscriptSRTExport(t *testing.T) {
	s := newTestServer(t, nil)

	uploaded := decodeTranscript(t, uploadWAV(t, s.ts.URL+"/asr", []byte("bytes")))

	resp, err := http.Get(s.ts.URL + "/transcripts/" + uploaded.ID + "/srt")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	srt := string(body)
	if !strings.Contains(srt, "00:00:00,000 --> 00:00:01,000") {
		t.Errorf("srt missing first cue: %q", srt)
	}
	if strings.Contains(srt, "sec]") {
		t.Errorf("gap marker leaked into srt: %q", srt)
	}
}

func TestListTranscripts(t *testing.T) {
	s := newTestServer(t, nil)

	uploadWAV(t, s.ts.URL+"/asr", []byte("first")).Body.Close()
	uploadWAV(t, s.ts.URL+"/asr", []byte("second")).Body.Close()

	resp, err := http.Get(s.ts.URL + "/transcripts")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var entries []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
}

func TestOptimize_WithoutLLMReturns503(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := http.Post(s.ts.URL+"/optimize", "application/json",
		strings.NewReader(`{"words":[{"word":"hi","start":0,"end":1}]}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestOptimize_FiltersWords(t *testing.T) {
	provider := &llmmock.Provider{Responses: []string{
		"```json\n[{\"word\":\"hello\"}]\n```",
	}}
	s := newTestServer(t, provider)

	resp, err := http.Post(s.ts.URL+"/optimize", "application/json",
		strings.NewReader(`{"words":[{"word":"um","start":0,"end":0.3},{"word":"hello","start":0.3,"end":1}]}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var out struct {
		Words []media.Word `json:"words"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Words) != 1 || out.Words[0].Text != "hello" {
		t.Errorf("words = %+v, want only %q", out.Words, "hello")
	}
	if out.Words[0].Start != 0.3 {
		t.Errorf("start = %v, want 0.3 (timestamps preserved)", out.Words[0].Start)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(s.ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		// /readyz may report 503 when ffmpeg is absent on the test host;
		// anything else must be 200.
		if path == "/readyz" {
			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
				t.Errorf("%s status = %d", path, resp.StatusCode)
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

// wsURL rewrites an httptest server URL for websocket dialing.
func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// recvUpdateType reads updates until one of the wanted type appears.
func recvUpdateType(ctx context.Context, t *testing.T, conn *websocket.Conn, want string) session.Update {
	t.Helper()
	for {
		var u session.Update
		if err := wsjson.Read(ctx, conn, &u); err != nil {
			t.Fatalf("read update (waiting for %q): %v", want, err)
		}
		if u.Type == want {
			return u
		}
	}
}

func TestSessionWebSocket(t *testing.T) {
	s := newTestServer(t, nil)

	uploaded := decodeTranscript(t, uploadWAV(t, s.ts.URL+"/asr", []byte("bytes")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(s.ts, "/session?transcript="+uploaded.ID), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Preloading pushes the full word sequence, gap entry included.
	seq := recvUpdateType(ctx, t, conn, session.UpdateSequence)
	if len(seq.Words) != 3 {
		t.Fatalf("sequence words = %d, want 3", len(seq.Words))
	}
	if !seq.Words[1].IsGap() {
		t.Errorf("middle word = %q, want gap marker", seq.Words[1].Text)
	}

	// Loading media and reporting a position activates the first segment.
	if err := wsjson.Write(ctx, conn, session.Event{Type: session.EventLoad, Duration: 2.5}); err != nil {
		t.Fatalf("write load: %v", err)
	}
	if err := wsjson.Write(ctx, conn, session.Event{Type: session.EventTimeUpdate, Time: 0.5}); err != nil {
		t.Fatalf("write timeupdate: %v", err)
	}
	active := recvUpdateType(ctx, t, conn, session.UpdateActive)
	if active.Segment != 0 || active.Flat != 0 {
		t.Errorf("active = seg %d flat %d, want 0/0", active.Segment, active.Flat)
	}

	// A word click seeks to the word start and pauses.
	if err := wsjson.Write(ctx, conn, session.Event{Type: session.EventWordClick, Segment: 2, Word: 0}); err != nil {
		t.Fatalf("write word_click: %v", err)
	}
	seek := recvUpdateType(ctx, t, conn, session.UpdateSeek)
	if seek.Time != 1.5 {
		t.Errorf("seek time = %v, want 1.5", seek.Time)
	}
	recvUpdateType(ctx, t, conn, session.UpdatePause)

	// The held resume fires after the configured delay.
	recvUpdateType(ctx, t, conn, session.UpdatePlay)
}

func TestSessionWebSocket_UnknownTranscript(t *testing.T) {
	s := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(s.ts, "/session?transcript=missing"), nil)
	if err != nil {
		// Some close paths surface during dial; that is acceptable too.
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var u session.Update
	if err := wsjson.Read(ctx, conn, &u); err == nil {
		t.Error("expected connection close for unknown transcript, got update")
	}
}
