// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz:  readiness probe; returns 200 only when all registered
//     checks pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map containing the result of each named check.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kweiler/clipscribe/internal/mediautil"
	"github.com/kweiler/clipscribe/internal/store"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// CheckFunc probes a dependency. It must respect context cancellation and
// return nil when the dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Check is a named readiness check.
type Check struct {
	// Name appears as a key in the /readyz JSON response.
	Name string

	Fn CheckFunc
}

// StoreCheck returns a Check that pings the transcript store.
func StoreCheck(s store.Store) Check {
	return Check{
		Name: "store",
		Fn:   s.Ping,
	}
}

// FFmpegCheck returns a Check that verifies ffmpeg is on PATH. Without it
// audio extraction from uploaded media is unavailable.
func FFmpegCheck() Check {
	return Check{
		Name: "ffmpeg",
		Fn: func(context.Context) error {
			if !mediautil.Available() {
				return errors.New("ffmpeg not found in PATH")
			}
			return nil
		},
	}
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. Safe for concurrent use; the check
// list is fixed at construction time.
type Handler struct {
	checks []Check
}

// New creates a [Handler] that evaluates the given checks on each /readyz
// request, sequentially in the order provided.
func New(checks ...Check) *Handler {
	c := make([]Check, len(checks))
	copy(c, checks)
	return &Handler{checks: c}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Check] passes. Each check runs with a [checkTimeout] deadline derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checks))
	allOK := true

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Fn(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
