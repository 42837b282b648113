package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/intent/internal/api/handlers"
	"github.com/wonny/intent/pkg/logger"
)

// Handlers groups everything the router mounts. Feed may be nil.
type Handlers struct {
	Companies *handlers.CompanyHandler
	Sources   *handlers.SourceHandler
	Feed      http.Handler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Companies
	api.HandleFunc("/companies", h.Companies.List).Methods("GET")
	api.HandleFunc("/companies", h.Companies.Create).Methods("POST")
	api.HandleFunc("/companies/{id}", h.Companies.Get).Methods("GET")
	api.HandleFunc("/companies/{id}", h.Companies.Delete).Methods("DELETE")
	api.HandleFunc("/companies/{id}/score", h.Companies.Score).Methods("GET")
	api.HandleFunc("/companies/{id}/signals", h.Companies.Signals).Methods("GET")
	api.HandleFunc("/companies/{id}/collect", h.Companies.Collect).Methods("POST")

	// Sources
	api.HandleFunc("/sources", h.Sources.Health).Methods("GET")
	api.HandleFunc("/sources/{source}/reset", h.Sources.Reset).Methods("POST")
	api.HandleFunc("/poller", h.Sources.Poller).Methods("GET")

	// Live scores
	if h.Feed != nil {
		r.Handle("/ws/scores", h.Feed).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"service": "intent-api",
	})
}

// statusRecorder captures the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Websocket upgrades need the raw writer
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.WithFields(map[string]any{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]any{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
