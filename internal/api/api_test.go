package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclinic/cliniq/internal/engine"
	"github.com/openclinic/cliniq/internal/vecstore"
)

type fakeService struct {
	answer      engine.Answer
	stats       engine.Stats
	count       int
	ready       bool
	gotQuestion string
	gotHistory  []engine.Turn
}

func (f *fakeService) Ask(_ context.Context, question string, history []engine.Turn) engine.Answer {
	f.gotQuestion = question
	f.gotHistory = history
	return f.answer
}

func (f *fakeService) Stats(context.Context) engine.Stats { return f.stats }
func (f *fakeService) DocumentCount(context.Context) int  { return f.count }
func (f *fakeService) Ready() bool                        { return f.ready }

type fakeDupChecker struct {
	report vecstore.DuplicateReport
	err    error
}

func (f *fakeDupChecker) CheckDuplicates(context.Context) (vecstore.DuplicateReport, error) {
	return f.report, f.err
}

func newTestServer(svc FAQService, dup DuplicateChecker) http.Handler {
	return NewServer(svc, dup, nil, Options{}, nil).Handler()
}

func TestAsk(t *testing.T) {
	svc := &fakeService{
		ready: true,
		answer: engine.Answer{
			Answer:              "We are open 9am to 5pm.",
			Sources:             []engine.Source{{Tag: "hours_0", RelevanceScore: 0.8}},
			Confidence:          engine.ConfidenceHigh,
			FollowUpSuggestions: []string{"Where is the clinic located?"},
		},
	}
	handler := newTestServer(svc, &fakeDupChecker{})

	body := `{"question": "What are your hours?", "conversation_history": [{"role": "user", "content": "hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/ask-faq", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "We are open 9am to 5pm.")
	assert.Contains(t, rec.Body.String(), `"confidence":"high"`)

	assert.Equal(t, "What are your hours?", svc.gotQuestion)
	require.Len(t, svc.gotHistory, 1)
	assert.Equal(t, "user", svc.gotHistory[0].Role)
}

func TestAsk_BadRequests(t *testing.T) {
	handler := newTestServer(&fakeService{ready: true}, &fakeDupChecker{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing question", `{}`},
		{"blank question", `{"question": "   "}`},
		{"question too long", `{"question": "` + strings.Repeat("x", maxQuestionLength+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/ask-faq", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestAsk_MethodNotAllowed(t *testing.T) {
	handler := newTestServer(&fakeService{}, &fakeDupChecker{})

	req := httptest.NewRequest(http.MethodGet, "/api/ask-faq", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLiveness(t *testing.T) {
	handler := newTestServer(&fakeService{}, &fakeDupChecker{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadiness_NoPool(t *testing.T) {
	handler := newTestServer(&fakeService{ready: true}, &fakeDupChecker{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		handler := newTestServer(&fakeService{ready: true, count: 14}, &fakeDupChecker{})

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
		assert.Contains(t, rec.Body.String(), `"rag_initialized":true`)
		assert.Contains(t, rec.Body.String(), `"document_count":14`)
	})

	t.Run("degraded", func(t *testing.T) {
		handler := newTestServer(&fakeService{ready: false}, &fakeDupChecker{})

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	})
}

func TestStats(t *testing.T) {
	svc := &fakeService{stats: engine.Stats{
		TotalDocuments:       12,
		TotalIntents:         7,
		RetrieverInitialized: true,
		QAChainInitialized:   true,
	}}
	handler := newTestServer(svc, &fakeDupChecker{})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_documents":12`)
	assert.Contains(t, rec.Body.String(), `"total_intents":7`)
}

func TestDuplicates(t *testing.T) {
	t.Run("report", func(t *testing.T) {
		dup := &fakeDupChecker{report: vecstore.DuplicateReport{
			TotalDocuments:  4,
			UniqueDocuments: 2,
			DuplicateGroups: 1,
			Duplicates:      []vecstore.DuplicatePreview{{ContentPreview: "dup", Count: 2}},
		}}
		handler := newTestServer(&fakeService{}, dup)

		req := httptest.NewRequest(http.MethodGet, "/api/duplicates", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"duplicate_groups":1`)
	})

	t.Run("scan failure", func(t *testing.T) {
		handler := newTestServer(&fakeService{}, &fakeDupChecker{err: errors.New("db down")})

		req := httptest.NewRequest(http.MethodGet, "/api/duplicates", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
