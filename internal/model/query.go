package model

import "github.com/rohanjaggi/hdb-prediction/internal/apperrors"

// AnalyzeRequest represents a natural-language question
type AnalyzeRequest struct {
	Query string `json:"query" binding:"required"`
}

// AnalyzeResponse carries the synthesized answer and the data behind it
type AnalyzeResponse struct {
	AnalysisID string            `json:"analysis_id"`
	Answer     string            `json:"answer"`
	Template   string            `json:"template,omitempty"`
	Intent     *StructuredIntent `json:"intent,omitempty"`
	Bundle     *ResultBundle     `json:"bundle,omitempty"`
	Took       int64             `json:"took_ms"` // Response time in milliseconds
}

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error *apperrors.Error `json:"error"`
}

// PredictRequest asks for a direct resale price estimate
type PredictRequest struct {
	StoreyMedian   int    `json:"storey_median" binding:"required,min=1"`
	FloorAreaSqm   int    `json:"floor_area_sqm" binding:"required,min=1"`
	RemainingLease *int   `json:"remaining_lease,omitempty"`
	Town           string `json:"town" binding:"required"`
	FlatType       string `json:"flat_type" binding:"required"`
}

// PredictResponse returns the estimate with the request echoed back
type PredictResponse struct {
	PredictedPrice float64        `json:"predicted_price"`
	Property       PredictRequest `json:"property"`
}

// BTOPriceRequest derives a subsidized price from a resale price
type BTOPriceRequest struct {
	ResalePrice float64  `json:"resale_price" binding:"required"`
	Discount    *float64 `json:"discount,omitempty"`
}

// BTOPriceResponse reports the subsidized price
type BTOPriceResponse struct {
	ResalePrice     float64 `json:"resale_price"`
	BTOPrice        float64 `json:"bto_price"`
	DiscountPercent float64 `json:"discount_percent"`
}

// AffordabilityRequest asks what income a price implies
type AffordabilityRequest struct {
	Price float64 `json:"price" binding:"required"`
}

// CatalogResponse lists the categories the pricing model understands
type CatalogResponse struct {
	Towns            []string `json:"towns"`
	FlatTypes        []string `json:"flat_types"`
	ExampleQuestions []string `json:"example_questions"`
}

// SimilarAnalysesResponse lists earlier questions close to a new one
type SimilarAnalysesResponse struct {
	Query    string            `json:"query"`
	Analyses []AnalysisSummary `json:"analyses"`
}

// FeedbackRequest rates a previous answer
type FeedbackRequest struct {
	AnalysisID string `json:"analysis_id" binding:"required"`
	Helpful    *bool  `json:"helpful" binding:"required"`
	Comment    string `json:"comment,omitempty"`
}

// FeedbackResponse represents feedback submission response
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
