// Package health serves the liveness and readiness probes of the local
// control plane.
//
// GET /healthz answers 200 as long as the process can serve HTTP. GET /readyz
// runs every [Checker] and answers 503 when a required one fails. Both reply
// with {"status": "ok"|"fail", "checks": {name: verdict}}, where a verdict is
// "ok", "fail: <err>" or, for optional checkers, "degraded: <err>".
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// Checker is one named readiness probe.
type Checker struct {
	// Name keys the verdict in the response, e.g. "knowledge_base".
	Name string

	// Check returns nil when the dependency is usable. It must honour ctx.
	Check func(ctx context.Context) error

	// Optional checkers are reported but never fail readiness. The game
	// client is optional: it is legitimately absent between sessions.
	Optional bool
}

func (c Checker) verdict(err error) (string, bool) {
	switch {
	case err == nil:
		return statusOK, true
	case c.Optional:
		return "degraded: " + err.Error(), true
	default:
		return statusFail + ": " + err.Error(), false
	}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints for a fixed set of checkers.
type Handler struct {
	checkers []Checker
}

// New returns a Handler over a copy of checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: statusOK})
}

// Readyz is the readiness probe. See [Handler.Run].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, ready := h.Run(r.Context())
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, result{Status: statusFail, Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, result{Status: statusOK, Checks: checks})
}

// Run evaluates all checkers concurrently, each under its own
// [checkTimeout], and returns the verdicts by name plus whether every required
// checker passed.
func (h *Handler) Run(ctx context.Context) (map[string]string, bool) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		ready  = true
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			v, ok := c.verdict(c.Check(cctx))

			mu.Lock()
			checks[c.Name] = v
			ready = ready && ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return checks, ready
}

// Register mounts GET /healthz and GET /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("health: write response", "err", err)
	}
}
