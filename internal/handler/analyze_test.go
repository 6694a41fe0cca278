package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
	"github.com/rohanjaggi/hdb-prediction/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnalyzer struct {
	query  string
	resp   *model.AnalyzeResponse
	err    error
	events []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, query string) (*model.AnalyzeResponse, error) {
	f.query = query
	return f.resp, f.err
}

func (f *fakeAnalyzer) AnalyzeStream(_ context.Context, query string, cb service.EventCallback) (*model.AnalyzeResponse, error) {
	f.query = query
	for _, e := range f.events {
		if err := cb(e, map[string]string{"stage": e}); err != nil {
			return nil, err
		}
	}
	return f.resp, f.err
}

func newAnalyzeRouter(a Analyzer) *gin.Engine {
	h := NewAnalyzeHandler(a)
	r := gin.New()
	r.POST("/analyze", h.Analyze)
	r.POST("/analyze/stream", h.AnalyzeStream)
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *apperrors.Error {
	t.Helper()
	var body model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error
}

func TestAnalyze_JSONBody(t *testing.T) {
	a := &fakeAnalyzer{resp: &model.AnalyzeResponse{AnalysisID: "id-1", Answer: "Yishun.", Template: "Best Locations + Next Steps"}}
	r := newAnalyzeRouter(a)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"query": "  Which towns are quiet?  "}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Which towns are quiet?", a.query)

	var got model.AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Yishun.", got.Answer)
	assert.Equal(t, "Best Locations + Next Steps", got.Template)
}

func TestAnalyze_PlainTextBody(t *testing.T) {
	a := &fakeAnalyzer{resp: &model.AnalyzeResponse{Answer: "ok"}}
	r := newAnalyzeRouter(a)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("4 room in Bedok?\n"))
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4 room in Bedok?", a.query)
}

func TestAnalyze_BadRequests(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"missing query", "application/json", `{}`},
		{"blank query", "application/json", `{"query": "   "}`},
		{"malformed json", "application/json", `{"query":`},
		{"empty text", "text/plain", "  "},
		{"oversized text", "text/plain", strings.Repeat("a", maxQueryBytes+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyzer{}
			r := newAnalyzeRouter(a)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, apperrors.KindInvalidInput, decodeError(t, w).Kind)
			assert.Empty(t, a.query)
		})
	}
}

func TestAnalyze_ErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperrors.IntentParse(nil, "bad reply"), http.StatusUnprocessableEntity},
		{apperrors.UpstreamTimeout(context.DeadlineExceeded, "answer synthesis timed out"), http.StatusGatewayTimeout},
		{apperrors.Upstream(nil, "answer synthesis failed"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		a := &fakeAnalyzer{err: tt.err}
		r := newAnalyzeRouter(a)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"query": "hi"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		assert.Equal(t, tt.status, w.Code)
		got := decodeError(t, w)
		assert.Equal(t, apperrors.KindOf(tt.err), got.Kind)
		assert.True(t, got.Retryable)
	}
}

func TestAnalyzeStream_Events(t *testing.T) {
	a := &fakeAnalyzer{
		events: []string{"intent", "scenarios", "bundle", "template", "delta"},
		resp:   &model.AnalyzeResponse{AnalysisID: "id-2", Answer: "done"},
	}
	r := newAnalyzeRouter(a)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze/stream", strings.NewReader(`{"query": "4 room in Bedok?"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	var events []string
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"start", "intent", "scenarios", "bundle", "template", "delta", "answer", "done"}, events)
	assert.Contains(t, w.Body.String(), `"analysis_id":"id-2"`)
}

func TestAnalyzeStream_Error(t *testing.T) {
	a := &fakeAnalyzer{events: []string{"intent"}, err: apperrors.UpstreamTimeout(nil, "answer synthesis timed out")}
	r := newAnalyzeRouter(a)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze/stream", strings.NewReader(`{"query": "hi"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, `"kind":"UPSTREAM_TIMEOUT"`)
	assert.NotContains(t, body, "event: done")
}
