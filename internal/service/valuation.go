package service

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/metrics"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
	"github.com/rohanjaggi/hdb-prediction/internal/oracle"
)

// Largest inputs accepted by the pricing model. The tallest HDB blocks are
// about 50 storeys and no flat type exceeds a few hundred square metres.
const (
	maxStorey  = 70
	maxAreaSqm = 500
)

// FeatureEncoder maps category names to model codes
type FeatureEncoder interface {
	Encode(location, unitType string) (int, int, error)
}

// ValuationService prices concrete scenarios with the pricing oracle
type ValuationService struct {
	encoder        FeatureEncoder
	oracle         oracle.Oracle
	remainingLease int
	discount       float64
	log            *zap.Logger
}

// NewValuationService creates a new valuation service. discount is the BTO
// discount in percent and remainingLease the lease assumed for every scenario.
func NewValuationService(enc FeatureEncoder, o oracle.Oracle, remainingLease int, discount float64, log *zap.Logger) *ValuationService {
	return &ValuationService{
		encoder:        enc,
		oracle:         o,
		remainingLease: remainingLease,
		discount:       discount,
		log:            log,
	}
}

// Value prices one scenario. Failures are reported inside the result, never
// as an error, so one bad scenario cannot sink the others.
func (s *ValuationService) Value(ctx context.Context, scenario model.ConcreteScenario) model.ValuationResult {
	result := model.ValuationResult{Scenario: scenario}

	price, err := s.Predict(ctx, oracleInput{
		storey:         scenario.StoreyRepresentative,
		areaSqm:        scenario.AreaSqm,
		remainingLease: s.remainingLease,
		location:       scenario.Location,
		unitType:       scenario.UnitType,
	})
	if err != nil {
		appErr := apperrors.As(err)
		result.Error = appErr.Message
		result.ErrorKind = string(appErr.Kind)
		metrics.ValuationsTotal.WithLabelValues(string(appErr.Kind)).Inc()
		s.log.Debug("valuation failed",
			zap.String("location", scenario.Location),
			zap.String("unit_type", scenario.UnitType),
			zap.Error(err))
		return result
	}

	result.OK = true
	result.OpenMarketPrice = price
	result.SubsidizedPrice = Subsidize(price, s.discount)
	metrics.ValuationsTotal.WithLabelValues("ok").Inc()
	return result
}

type oracleInput struct {
	storey         int
	areaSqm        int
	remainingLease int
	location       string
	unitType       string
}

// Predict encodes the categories and asks the oracle for an open-market price.
func (s *ValuationService) Predict(ctx context.Context, in oracleInput) (float64, error) {
	if in.storey < 1 || in.storey > maxStorey {
		return 0, apperrors.InvalidInput("storey must be between 1 and %d, got %d", maxStorey, in.storey)
	}
	if in.areaSqm < 1 || in.areaSqm > maxAreaSqm {
		return 0, apperrors.InvalidInput("area must be between 1 and %d sqm, got %d", maxAreaSqm, in.areaSqm)
	}

	locationCode, unitTypeCode, err := s.encoder.Encode(in.location, in.unitType)
	if err != nil {
		return 0, err
	}

	metrics.ValuationsInFlight.Inc()
	price, err := s.oracle.Predict(ctx, oracle.Features{
		Storey:         in.storey,
		AreaSqm:        in.areaSqm,
		RemainingLease: in.remainingLease,
		LocationCode:   locationCode,
		UnitTypeCode:   unitTypeCode,
	})
	metrics.ValuationsInFlight.Dec()
	if err != nil {
		return 0, apperrors.InvalidInput("pricing model rejected the scenario: %v", err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, apperrors.InvalidInput("pricing model returned a non-finite price")
	}
	return price, nil
}

// PredictProperty prices an explicitly described flat. A nil lease uses the
// configured default.
func (s *ValuationService) PredictProperty(ctx context.Context, req model.PredictRequest) (float64, error) {
	lease := s.remainingLease
	if req.RemainingLease != nil {
		lease = *req.RemainingLease
	}
	if lease < 0 || lease > 99 {
		return 0, apperrors.InvalidInput("remaining_lease must be between 0 and 99, got %d", lease)
	}
	return s.Predict(ctx, oracleInput{
		storey:         req.StoreyMedian,
		areaSqm:        req.FloorAreaSqm,
		remainingLease: lease,
		location:       req.Town,
		unitType:       req.FlatType,
	})
}

// DefaultDiscount returns the configured BTO discount in percent
func (s *ValuationService) DefaultDiscount() float64 { return s.discount }

// Subsidize applies a percentage discount to an open-market price
func Subsidize(price, discountPercent float64) float64 {
	return price * (1 - discountPercent/100)
}

// BTOPrice validates a discount and applies it to a resale price
func BTOPrice(resale, discountPercent float64) (float64, error) {
	if math.IsNaN(resale) || math.IsInf(resale, 0) || resale < 0 {
		return 0, apperrors.InvalidInput("resale_price must be a non-negative number")
	}
	if math.IsNaN(discountPercent) || discountPercent < 0 || discountPercent > 100 {
		return 0, apperrors.InvalidInput("discount must be between 0 and 100, got %v", discountPercent)
	}
	return Subsidize(resale, discountPercent), nil
}
