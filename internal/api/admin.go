package api

import (
	"context"
	"net/http"

	"github.com/openclinic/cliniq/internal/log"
	"github.com/openclinic/cliniq/internal/vecstore"
)

// DuplicateChecker is the diagnostic surface of the vector index.
type DuplicateChecker interface {
	CheckDuplicates(ctx context.Context) (vecstore.DuplicateReport, error)
}

// AdminHandler exposes operational diagnostics.
type AdminHandler struct {
	svc    FAQService
	dup    DuplicateChecker
	logger log.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(svc FAQService, dup DuplicateChecker, logger log.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, dup: dup, logger: logger}
}

// RegisterRoutes registers admin routes on the given mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /api/duplicates", h.duplicates)
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "engine not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}

func (h *AdminHandler) duplicates(w http.ResponseWriter, r *http.Request) {
	if h.dup == nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "vector index not configured")
		return
	}
	report, err := h.dup.CheckDuplicates(r.Context())
	if err != nil {
		h.logger.Error("duplicate check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "duplicate_check_failed", "could not scan the vector index")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
