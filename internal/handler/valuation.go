package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
	"github.com/rohanjaggi/hdb-prediction/internal/service"
)

// ExampleQuestions are shown by clients next to the question box
var ExampleQuestions = []string{
	"Please recommend housing estates that have had limited BTO launches in the past ten years.",
	"How much would a 4-room BTO flat cost in Tampines and what income do I need?",
	"Please recommend housing estates that have had limited BTO launches in the past ten years. For each estate, provide an analysis of potential BTO prices for both 3-room and 4-room flats, considering low, middle, and high floor levels.",
	"What are the BTO prospects and prices in Sengkang?",
}

// PropertyPricer prices explicitly described flats
type PropertyPricer interface {
	PredictProperty(ctx context.Context, req model.PredictRequest) (float64, error)
	DefaultDiscount() float64
}

// Catalog lists the categories the pricing model knows
type Catalog interface {
	Towns() []string
	FlatTypes() []string
}

// ValuationHandler serves the direct calculator endpoints
type ValuationHandler struct {
	pricer      PropertyPricer
	recommender service.Recommender
	catalog     Catalog
}

// NewValuationHandler creates a new valuation handler
func NewValuationHandler(pricer PropertyPricer, recommender service.Recommender, catalog Catalog) *ValuationHandler {
	return &ValuationHandler{
		pricer:      pricer,
		recommender: recommender,
		catalog:     catalog,
	}
}

// Predict handles POST /api/v1/predict
func (h *ValuationHandler) Predict(c *gin.Context) {
	var req model.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.InvalidInput("Invalid request: %v", err))
		return
	}

	price, err := h.pricer.PredictProperty(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.PredictResponse{
		PredictedPrice: round2(price),
		Property:       req,
	})
}

// BTOPrice handles POST /api/v1/bto-price
func (h *ValuationHandler) BTOPrice(c *gin.Context) {
	var req model.BTOPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.InvalidInput("Invalid request: %v", err))
		return
	}

	discount := h.pricer.DefaultDiscount()
	if req.Discount != nil {
		discount = *req.Discount
	}

	bto, err := service.BTOPrice(req.ResalePrice, discount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.BTOPriceResponse{
		ResalePrice:     req.ResalePrice,
		BTOPrice:        round2(bto),
		DiscountPercent: discount,
	})
}

// Affordability handles POST /api/v1/affordability
func (h *ValuationHandler) Affordability(c *gin.Context) {
	var req model.AffordabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.InvalidInput("Invalid request: %v", err))
		return
	}

	result, err := service.Afford(req.Price)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Recommendations handles GET /api/v1/recommendations?lookback_years=N
func (h *ValuationHandler) Recommendations(c *gin.Context) {
	lookback := 10
	if raw := c.Query("lookback_years"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, apperrors.InvalidInput("Invalid lookback_years: %q", raw))
			return
		}
		lookback = n
	}

	result, err := h.recommender.Recommend(c.Request.Context(), lookback)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Catalog handles GET /api/v1/catalog
func (h *ValuationHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, model.CatalogResponse{
		Towns:            h.catalog.Towns(),
		FlatTypes:        h.catalog.FlatTypes(),
		ExampleQuestions: ExampleQuestions,
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
