package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
)

// FeedbackStore records answer ratings
type FeedbackStore interface {
	LogFeedback(ctx context.Context, analysisID string, helpful bool, comment string) (bool, error)
}

// FeedbackHandler handles feedback-related HTTP requests
type FeedbackHandler struct {
	store FeedbackStore
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(store FeedbackStore) *FeedbackHandler {
	return &FeedbackHandler{store: store}
}

// Submit handles POST /api/v1/feedback
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.InvalidInput("Invalid request: %v", err))
		return
	}

	if _, err := uuid.Parse(req.AnalysisID); err != nil {
		respondError(c, apperrors.InvalidInput("Invalid analysis_id: %q", req.AnalysisID))
		return
	}

	found, err := h.store.LogFeedback(c.Request.Context(), req.AnalysisID, *req.Helpful, req.Comment)
	if err != nil {
		respondError(c, apperrors.Internal(err, "Failed to log feedback"))
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, model.FeedbackResponse{
			Success: false,
			Message: "Analysis not found",
		})
		return
	}

	c.JSON(http.StatusOK, model.FeedbackResponse{
		Success: true,
		Message: "Feedback logged successfully",
	})
}
