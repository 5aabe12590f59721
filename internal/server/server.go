// Package server exposes the clipscribe HTTP API: media upload and
// transcription, audio extraction, transcript optimization, stored
// transcript retrieval, and the WebSocket endpoint that drives live
// playback-synchronized editing sessions.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kweiler/clipscribe/internal/config"
	"github.com/kweiler/clipscribe/internal/health"
	"github.com/kweiler/clipscribe/internal/observe"
	"github.com/kweiler/clipscribe/internal/optimize"
	"github.com/kweiler/clipscribe/internal/session"
	"github.com/kweiler/clipscribe/internal/store"
	"github.com/kweiler/clipscribe/pkg/provider/asr"
	"github.com/kweiler/clipscribe/pkg/provider/llm"
)

// Config carries the dependencies a Server needs. ASR and Store are
// required; LLM is optional and disables /optimize when nil.
type Config struct {
	ASR      asr.Provider
	LLM      llm.Provider
	Store    store.Store
	Metrics  *observe.Metrics
	Media    config.MediaConfig
	Playback config.PlaybackConfig
	Logger   *slog.Logger
}

// Server holds the handler state. Create with [New], mount with [Handler].
type Server struct {
	asrProvider asr.Provider
	optimizer   *optimize.Optimizer
	store       store.Store
	sessions    *session.Manager
	metrics     *observe.Metrics
	log         *slog.Logger

	tmpDir         string
	maxUploadBytes int64
	pauseThreshold float64
	resumeDelay    time.Duration
	pauseOnly      bool
}

// New wires a Server from the given dependencies. Zero-valued media and
// playback settings fall back to their configured defaults.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	s := &Server{
		asrProvider:    cfg.ASR,
		store:          cfg.Store,
		sessions:       session.NewManager(),
		metrics:        metrics,
		log:            log,
		tmpDir:         cfg.Media.TmpDir,
		maxUploadBytes: int64(cfg.Media.EffectiveMaxUploadMB()) << 20,
		pauseThreshold: cfg.Media.EffectivePauseThreshold(),
		resumeDelay:    time.Duration(cfg.Playback.EffectiveResumeDelayMs()) * time.Millisecond,
		pauseOnly:      cfg.Playback.PauseOnly,
	}
	if cfg.LLM != nil {
		s.optimizer = optimize.New(cfg.LLM, optimize.WithLogger(log))
	}
	return s
}

// Sessions returns the live session manager, used for shutdown and for the
// active-session gauge.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// Handler builds the routing table and wraps it in the observability
// middleware. TLS and listening are the caller's concern.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("POST /asr", s.handleTranscribe)
	mux.HandleFunc("POST /extract-audio", s.handleExtractAudio)
	mux.HandleFunc("POST /optimize", s.handleOptimize)
	mux.HandleFunc("GET /transcripts", s.handleListTranscripts)
	mux.HandleFunc("GET /transcripts/{id}", s.handleGetTranscript)
	mux.HandleFunc("GET /transcripts/{id}/srt", s.handleTranscriptSRT)
	mux.HandleFunc("GET /session", s.handleSession)

	health.New(health.StoreCheck(s.store), health.FFmpegCheck()).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Close shuts down all live sessions. Call during server shutdown after the
// HTTP listener has stopped accepting connections.
func (s *Server) Close() {
	s.sessions.CloseAll()
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
