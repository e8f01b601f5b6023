// Package health serves the gateway's liveness and readiness probes.
//
// GET /healthz answers 200 whenever the process can serve HTTP, and reports
// uptime. GET /readyz probes the registered dependencies and answers 503
// until every probe passes. The gateway registers its KV store under the
// active mode, so the readiness report names the check "redis" or "memory"
// depending on which backend Connect settled on.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"
)

// probeTimeout bounds each readiness probe. A dependency that cannot answer
// in this window is reported as failed rather than holding up the endpoint.
const probeTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil when the dependency
// can serve traffic; it must respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// report is the probe response body. Uptime appears on /healthz, Checks on
// /readyz.
type report struct {
	Status string                 `json:"status"`
	Uptime string                 `json:"uptime,omitempty"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Handler answers /healthz and /readyz. The checker list is fixed at
// construction, so it is safe for concurrent use.
type Handler struct {
	started  time.Time
	checkers []Checker
}

// New builds a Handler over the given readiness probes. Probes run
// sequentially in the order given.
func New(checkers ...Checker) *Handler {
	return &Handler{
		started:  time.Now(),
		checkers: slices.Clone(checkers),
	}
}

// Healthz is the liveness probe: a process that reached this handler is
// alive, so it always answers 200 with the time since construction.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz runs every probe under a [probeTimeout] deadline and answers 503 if
// any fails. The body names each probe with its individual outcome.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]checkResult, len(h.checkers))
	overall, status := "ok", http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = checkResult{Status: "fail", Error: err.Error()}
			overall, status = "fail", http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = checkResult{Status: "ok"}
	}

	writeJSON(w, status, report{Status: overall, Checks: checks})
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
