package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kweiler/clipscribe/pkg/media"
)

// optimizeRequest is the /optimize request body: the flat word sequence to
// tighten up, gap entries included.
type optimizeRequest struct {
	Words []media.Word `json:"words"`
}

// optimizeResponse carries the filtered sequence back to the client.
type optimizeResponse struct {
	Words []media.Word `json:"words"`
}

// handleOptimize runs the LLM word-filtering pass over a submitted word
// sequence. Returns 503 when no LLM provider is configured.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.optimizer == nil {
		writeError(w, http.StatusServiceUnavailable, "no llm provider configured")
		return
	}

	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start := time.Now()
	kept, err := s.optimizer.Optimize(ctx, req.Words)
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "llm", "optimize")
		s.log.Error("optimization failed", "words", len(req.Words), "err", err)
		writeError(w, http.StatusBadGateway, "optimization failed")
		return
	}
	s.metrics.RecordProviderRequest(ctx, "llm", "optimize", "ok")

	if kept == nil {
		kept = []media.Word{}
	}
	writeJSON(w, http.StatusOK, optimizeResponse{Words: kept})
}
