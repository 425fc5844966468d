// Package admin provides the /admin/* control plane for simulators: state
// inspection and replacement, fault injection, request inspection and
// simulated time.
package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zodiacbot/zodiacbot/pkg/clock"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

// StateStore is implemented by a simulator's backing state.
type StateStore interface {
	// Snapshot returns the full state as a JSON-serializable value.
	Snapshot() any
	// LoadState replaces the full state from a JSON body.
	LoadState(data []byte) error
	// Reset clears all state.
	Reset()
}

// Handler serves the admin endpoints.
type Handler struct {
	state StateStore
	mw    *httpkit.Middleware
	clock *clock.Offset
}

// NewHandler creates an admin handler. clk may be nil when the simulator
// has no adjustable time.
func NewHandler(state StateStore, mw *httpkit.Middleware, clk *clock.Offset) *Handler {
	return &Handler{state: state, mw: mw, clock: clk}
}

// Routes mounts the admin endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reset", h.handleReset)
		r.Get("/state", h.handleGetState)
		r.Post("/state", h.handleLoadState)
		r.Post("/fault/*", h.handleInjectFault)
		r.Delete("/fault/*", h.handleRemoveFault)
		r.Get("/faults", h.handleListFaults)
		r.Get("/requests", h.handleGetRequests)
		r.Post("/time/advance", h.handleTimeAdvance)
		r.Get("/time", h.handleGetTime)
		r.Get("/health", h.handleHealth)
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.state.Reset()
	h.mw.ReqLog.Clear()
	h.mw.Faults.Reset()
	h.mw.Idempotent.Reset()
	if h.clock != nil {
		h.clock.Reset()
	}
	httpkit.JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	httpkit.JSON(w, http.StatusOK, h.state.Snapshot())
}

func (h *Handler) handleLoadState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpkit.Error(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	if err := h.state.LoadState(body); err != nil {
		httpkit.Error(w, http.StatusBadRequest, "failed to load state: "+err.Error())
		return
	}
	httpkit.JSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

// faultPath turns the wildcard tail into the request path the fault
// registry matches on, so /admin/fault/v3/payments targets /v3/payments.
func faultPath(r *http.Request) string {
	return "/" + chi.URLParam(r, "*")
}

func (h *Handler) handleInjectFault(w http.ResponseWriter, r *http.Request) {
	endpoint := faultPath(r)

	var fault httpkit.FaultConfig
	if err := json.NewDecoder(r.Body).Decode(&fault); err != nil {
		httpkit.Error(w, http.StatusBadRequest, "invalid fault config: "+err.Error())
		return
	}
	h.mw.Faults.Set(endpoint, fault)
	httpkit.JSON(w, http.StatusOK, map[string]any{
		"status":   "injected",
		"endpoint": endpoint,
		"fault":    fault,
	})
}

func (h *Handler) handleRemoveFault(w http.ResponseWriter, r *http.Request) {
	endpoint := faultPath(r)
	if !h.mw.Faults.Remove(endpoint) {
		httpkit.Error(w, http.StatusNotFound, "no fault registered for "+endpoint)
		return
	}
	httpkit.JSON(w, http.StatusOK, map[string]any{"status": "removed", "endpoint": endpoint})
}

func (h *Handler) handleListFaults(w http.ResponseWriter, r *http.Request) {
	httpkit.JSON(w, http.StatusOK, h.mw.Faults.All())
}

func (h *Handler) handleGetRequests(w http.ResponseWriter, r *http.Request) {
	httpkit.JSON(w, http.StatusOK, h.mw.ReqLog.Entries())
}

func (h *Handler) handleTimeAdvance(w http.ResponseWriter, r *http.Request) {
	if h.clock == nil {
		httpkit.Error(w, http.StatusBadRequest, "simulated clock not configured")
		return
	}

	var req struct {
		Duration string `json:"duration"` // e.g. "24h", "720h"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.Error(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		httpkit.Error(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}

	h.clock.Advance(d)
	httpkit.JSON(w, http.StatusOK, map[string]any{
		"status":    "advanced",
		"duration":  d.String(),
		"offset":    h.clock.Shift().String(),
		"simulated": h.clock.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleGetTime(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"real": time.Now().UTC().Format(time.RFC3339)}
	if h.clock != nil {
		resp["simulated"] = h.clock.Now().Format(time.RFC3339)
		resp["offset"] = h.clock.Shift().String()
	}
	httpkit.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpkit.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
