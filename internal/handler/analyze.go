package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
	"github.com/rohanjaggi/hdb-prediction/internal/service"
)

// maxQueryBytes bounds a plain-text question body
const maxQueryBytes = 8 << 10

// Analyzer answers natural-language housing questions
type Analyzer interface {
	Analyze(ctx context.Context, query string) (*model.AnalyzeResponse, error)
	AnalyzeStream(ctx context.Context, query string, callback service.EventCallback) (*model.AnalyzeResponse, error)
}

// AnalyzeHandler handles assistant HTTP requests
type AnalyzeHandler struct {
	analyzer Analyzer
}

// NewAnalyzeHandler creates a new analyze handler
func NewAnalyzeHandler(analyzer Analyzer) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer}
}

// Analyze handles POST /api/v1/analyze
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	query, err := bindQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	response, err := h.analyzer.Analyze(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// AnalyzeStream handles POST /api/v1/analyze/stream - SSE streaming analysis
func (h *AnalyzeHandler) AnalyzeStream(c *gin.Context) {
	query, err := bindQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	// Create flusher for SSE
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, apperrors.Internal(nil, "streaming not supported"))
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendSSE(c, "start", map[string]any{"query": query})
	flusher.Flush()

	response, err := h.analyzer.AnalyzeStream(c.Request.Context(), query, func(event string, data any) error {
		if err := c.Request.Context().Err(); err != nil {
			return err
		}
		sendSSE(c, event, data)
		flusher.Flush()
		return nil
	})

	if err != nil {
		sendSSE(c, "error", model.ErrorResponse{Error: apperrors.As(err)})
		flusher.Flush()
		return
	}

	sendSSE(c, "answer", response)
	flusher.Flush()

	sendSSE(c, "done", nil)
	flusher.Flush()
}

// bindQuery accepts {"query": "..."} or, for simple chat forms, a
// plain-text body
func bindQuery(c *gin.Context) (string, error) {
	if strings.HasPrefix(c.ContentType(), "text/plain") {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxQueryBytes+1))
		if err != nil {
			return "", apperrors.InvalidInput("Invalid request: %v", err)
		}
		if len(body) > maxQueryBytes {
			return "", apperrors.InvalidInput("Invalid request: question is longer than %d bytes", maxQueryBytes)
		}
		query := strings.TrimSpace(string(body))
		if query == "" {
			return "", apperrors.InvalidInput("Invalid request: empty question")
		}
		return query, nil
	}

	var req model.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", apperrors.InvalidInput("Invalid request: %v", err)
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return "", apperrors.InvalidInput("Invalid request: empty question")
	}
	if len(query) > maxQueryBytes {
		return "", apperrors.InvalidInput("Invalid request: question is longer than %d bytes", maxQueryBytes)
	}
	return query, nil
}

// respondError writes a structured error; raw causes are never exposed
func respondError(c *gin.Context, err error) {
	appErr := apperrors.As(err)
	c.JSON(apperrors.HTTPStatus(appErr.Kind), model.ErrorResponse{Error: appErr})
}

// sendSSE sends a Server-Sent Event
func sendSSE(c *gin.Context, event string, data any) {
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\": \"JSON marshal failed\"}\n\n")
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, string(jsonData))
	} else {
		fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", event)
	}
}
