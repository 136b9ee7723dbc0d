package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/openclinic/cliniq/internal/engine"
	"github.com/openclinic/cliniq/internal/log"
)

// maxQuestionLength bounds user questions to keep prompts small.
const maxQuestionLength = 500

// FAQService is the engine surface the HTTP layer depends on.
type FAQService interface {
	Ask(ctx context.Context, question string, history []engine.Turn) engine.Answer
	Stats(ctx context.Context) engine.Stats
	DocumentCount(ctx context.Context) int
	Ready() bool
}

// AskRequest is the body of POST /api/ask-faq.
type AskRequest struct {
	Question            string        `json:"question"`
	ConversationHistory []engine.Turn `json:"conversation_history,omitempty"`
}

// AskHandler answers clinic questions.
type AskHandler struct {
	svc    FAQService
	logger log.Logger
}

// NewAskHandler creates the ask handler.
func NewAskHandler(svc FAQService, logger log.Logger) *AskHandler {
	return &AskHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers ask routes on the given mux.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ask-faq", h.ask)
}

func (h *AskHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "missing_question", "question is required")
		return
	}
	if len(question) > maxQuestionLength {
		writeError(w, http.StatusBadRequest, "question_too_long", "question exceeds 500 characters")
		return
	}

	answer := h.svc.Ask(r.Context(), question, req.ConversationHistory)

	h.logger.Info("question answered",
		"request_id", RequestID(r.Context()),
		"confidence", answer.Confidence,
		"sources", len(answer.Sources))

	writeJSON(w, http.StatusOK, answer)
}
