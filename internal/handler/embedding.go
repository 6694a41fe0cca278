package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
	"github.com/rohanjaggi/hdb-prediction/internal/service"
)

const (
	defaultSimilarLimit = 5
	maxSimilarLimit     = 20
)

// SimilarAnalysisStore searches past analyses by question embedding
type SimilarAnalysisStore interface {
	SimilarAnalyses(ctx context.Context, embedding []float32, limit int) ([]model.AnalysisSummary, error)
}

// EmbeddingHandler serves embedding-backed lookups
type EmbeddingHandler struct {
	embedder service.Embedder
	store    SimilarAnalysisStore
}

// NewEmbeddingHandler creates a new embedding handler. A nil embedder
// disables the endpoint.
func NewEmbeddingHandler(embedder service.Embedder, store SimilarAnalysisStore) *EmbeddingHandler {
	return &EmbeddingHandler{embedder: embedder, store: store}
}

// Similar handles GET /api/v1/analyses/similar?query=...&limit=N
func (h *EmbeddingHandler) Similar(c *gin.Context) {
	if h.embedder == nil {
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Error: apperrors.Upstream(nil, "similarity search requires an embedding provider"),
		})
		return
	}

	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		respondError(c, apperrors.InvalidInput("query parameter is required"))
		return
	}

	limit := defaultSimilarLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, apperrors.InvalidInput("Invalid limit: %q", raw))
			return
		}
		limit = min(n, maxSimilarLimit)
	}

	vectors, err := h.embedder.CreateEmbeddings(c.Request.Context(), []string{query})
	if err != nil {
		respondError(c, apperrors.FromUpstream(err, "query embedding"))
		return
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		respondError(c, apperrors.Upstream(nil, "embedding provider returned no vector"))
		return
	}

	analyses, err := h.store.SimilarAnalyses(c.Request.Context(), vectors[0], limit)
	if err != nil {
		respondError(c, apperrors.SourceUnavailable(err, "analysis history is unavailable"))
		return
	}
	if analyses == nil {
		analyses = []model.AnalysisSummary{}
	}

	c.JSON(http.StatusOK, model.SimilarAnalysesResponse{
		Query:    query,
		Analyses: analyses,
	})
}
