// Package health provides the liveness and readiness probes for the voxpipe
// server.
//
//   - /healthz — liveness; a process that can serve HTTP answers 200 OK.
//   - /readyz  — readiness; 200 only when every registered [Checker] passes,
//     503 otherwise. Typical checkers probe the Postgres history store and
//     the configured provider endpoints.
//
// The readiness payload reports every check individually, so an operator can
// tell a sick database from an unreachable TTS endpoint in one curl:
//
//	{"status":"fail","checks":{"postgres":{"status":"ok","duration":"1.2ms"},
//	 "tts":{"status":"fail","error":"dial tcp: connection refused","duration":"30ms"}}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// checkTimeout bounds a single readiness check. Slow dependencies count as
// not ready rather than stalling the probe.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is usable and an error describing the failure otherwise; it must respect
// context cancellation.
type Checker struct {
	// Name keys the check in the readiness payload ("postgres", "stt", ...).
	Name string

	Check func(ctx context.Context) error
}

// checkResult is one checker's outcome in the readiness payload.
type checkResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction; the handler itself is stateless and safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler evaluating the given checkers on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz runs every registered checker, each under its own [checkTimeout],
// and reports 200 only when all of them pass. Checks run concurrently so the
// probe's latency is that of the slowest dependency, not the sum.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]checkResult, len(h.checkers))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()

			start := time.Now()
			err := c.Check(ctx)
			res := checkResult{Status: "ok", Duration: time.Since(start).String()}
			if err != nil {
				res.Status = "fail"
				res.Error = err.Error()
			}

			mu.Lock()
			checks[c.Name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := http.StatusOK
	overall := "ok"
	for _, res := range checks {
		if res.Status != "ok" {
			status = http.StatusServiceUnavailable
			overall = "fail"
			break
		}
	}

	writeJSON(w, status, struct {
		Status string                 `json:"status"`
		Checks map[string]checkResult `json:"checks,omitempty"`
	}{Status: overall, Checks: checks})
}

// Register adds the probe routes to mux.
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
