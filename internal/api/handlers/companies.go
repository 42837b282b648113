package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/engine"
	"github.com/wonny/intent/pkg/logger"
)

const maxSignalsPerResponse = 1000

// CompanyHandler serves company registration, scores and signals
// ⭐ SSOT: 회사 API 핸들러는 이 구조체에서만
type CompanyHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewCompanyHandler creates a new company handler
func NewCompanyHandler(e *engine.Engine, log *logger.Logger) *CompanyHandler {
	return &CompanyHandler{
		engine: e,
		logger: log,
	}
}

// List returns every registered company
// GET /api/companies
func (h *CompanyHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Companies().List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list companies")
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"companies": list,
		"count":     len(list),
	})
}

// Create registers or updates a company
// POST /api/companies
func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var company contracts.Company
	if err := json.NewDecoder(r.Body).Decode(&company); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	stored, err := h.engine.Companies().Add(r.Context(), company)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, stored)
}

// Get returns one company
// GET /api/companies/{id}
func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	company, err := h.engine.Companies().Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, company)
}

// Delete stops tracking a company
// DELETE /api/companies/{id}
func (h *CompanyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Companies().Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Score returns the company's intent score
// GET /api/companies/{id}/score
func (h *CompanyHandler) Score(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Score(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.logger.WithError(err).WithField("company", mux.Vars(r)["id"]).Warn("Score failed")
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Signals returns recent signals
// GET /api/companies/{id}/signals?since=RFC3339&limit=N
func (h *CompanyHandler) Signals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	company, err := h.engine.Companies().Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}

	// Default: last 30 days
	since := time.Now().AddDate(0, 0, -30)
	if v := r.URL.Query().Get("since"); v != "" {
		since, err = time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'since' (expected RFC3339)")
			return
		}
	}

	limit := maxSignalsPerResponse
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit'")
			return
		}
		limit = min(n, maxSignalsPerResponse)
	}

	signals := make([]contracts.Signal, 0)
	for sig, err := range h.engine.RecentSignals(ctx, company.ID, since, min(limit, engine.DefaultPageSize)) {
		if err != nil {
			respondErr(w, err)
			return
		}
		signals = append(signals, sig)
		if len(signals) == limit {
			break
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"company_id": company.ID,
		"since":      since,
		"signals":    signals,
		"count":      len(signals),
	})
}

// Collect runs one collection cycle for the company
// POST /api/companies/{id}/collect
func (h *CompanyHandler) Collect(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Collect(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.logger.WithError(err).Error("Collection failed")
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
