package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclinic/cliniq/internal/log"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	pool   *pgxpool.Pool
	svc    FAQService
	logger log.Logger
}

// NewHealthHandler creates a new health handler.
// pool is the database connection pool used for readiness checks.
func NewHealthHandler(pool *pgxpool.Pool, svc FAQService, logger log.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, svc: svc, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
	mux.HandleFunc("GET /api/health", h.apiHealth)
}

// liveness is a liveness probe endpoint.
// Returns 200 OK if the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness is a readiness probe endpoint.
// Returns 200 OK if the database answers and the answer pipeline is wired.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		http.Error(w, "database pool not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}
	if h.svc == nil || !h.svc.Ready() {
		http.Error(w, "answer pipeline not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status         string `json:"status"`
	RAGInitialized bool   `json:"rag_initialized"`
	DocumentCount  int    `json:"document_count"`
}

// apiHealth reports pipeline state to API consumers. Always 200: a degraded
// pipeline is reported in the body, not as a transport failure.
func (h *HealthHandler) apiHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy"}
	if h.svc != nil {
		resp.RAGInitialized = h.svc.Ready()
		resp.DocumentCount = h.svc.DocumentCount(r.Context())
	}
	if !resp.RAGInitialized {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}
