package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/intent/internal/companies"
	"github.com/wonny/intent/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusOf maps a domain error to its HTTP status
func statusOf(err error) int {
	switch {
	case contracts.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, contracts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, contracts.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err with the status derived from its kind.
// Validation failures carry their per-field messages.
func respondErr(w http.ResponseWriter, err error) {
	var verr *companies.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}

	status := statusOf(err)
	if status == http.StatusInternalServerError {
		respondError(w, status, "Internal server error")
		return
	}
	respondError(w, status, err.Error())
}
