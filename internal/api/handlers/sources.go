package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/engine"
	"github.com/wonny/intent/internal/scheduler"
	"github.com/wonny/intent/pkg/logger"
)

// SourceHandler exposes source health and the poller state
type SourceHandler struct {
	engine *engine.Engine
	poller *scheduler.Poller
	logger *logger.Logger
}

// NewSourceHandler creates a new source handler. poller may be nil.
func NewSourceHandler(e *engine.Engine, poller *scheduler.Poller, log *logger.Logger) *SourceHandler {
	return &SourceHandler{
		engine: e,
		poller: poller,
		logger: log,
	}
}

// Health returns every enabled source's breaker snapshot
// GET /api/sources
func (h *SourceHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"sources": h.engine.Health(),
	})
}

// Reset re-enables a source
// POST /api/sources/{source}/reset
func (h *SourceHandler) Reset(w http.ResponseWriter, r *http.Request) {
	source := contracts.Source(mux.Vars(r)["source"])
	if err := h.engine.ResetSource(source); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "reset",
		"source": string(source),
	})
}

// Poller returns dispatch counters and per-pair state
// GET /api/poller
func (h *SourceHandler) Poller(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		respondError(w, http.StatusNotFound, "Poller not running")
		return
	}

	status := "running"
	if err := h.poller.Halted(); err != nil {
		status = "halted: " + err.Error()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"stats":  h.poller.Stats(),
		"pairs":  h.poller.Pairs(),
	})
}
