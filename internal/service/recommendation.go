package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
)

// LocationSource returns per-town transaction aggregates since cutoffYear
type LocationSource interface {
	LocationStats(ctx context.Context, cutoffYear int) ([]model.LocationStat, error)
}

// StatsCache stores ranked aggregates by cutoff year. Implementations
// swallow their own failures and report a miss.
type StatsCache interface {
	GetStats(ctx context.Context, cutoffYear int) ([]model.LocationStat, bool)
	SetStats(ctx context.Context, cutoffYear int, stats []model.LocationStat)
}

// RecommendationService builds the location shortlist
type RecommendationService struct {
	source        LocationSource
	cache         StatsCache
	referenceYear func() int
	log           *zap.Logger
}

// NewRecommendationService creates a new recommendation service. cache may
// be nil. referenceYear supplies the year lookbacks count back from.
func NewRecommendationService(source LocationSource, cache StatsCache, referenceYear func() int, log *zap.Logger) *RecommendationService {
	return &RecommendationService{
		source:        source,
		cache:         cache,
		referenceYear: referenceYear,
		log:           log,
	}
}

// Recommend returns up to MaxRecommendedLocations towns with the least
// recent activity in the lookback window
func (s *RecommendationService) Recommend(ctx context.Context, lookbackYears int) (*model.RecommendationResult, error) {
	if lookbackYears < 0 {
		return nil, apperrors.InvalidInput("lookback_years must not be negative, got %d", lookbackYears)
	}

	cutoff := s.referenceYear() - lookbackYears
	result := &model.RecommendationResult{
		LookbackYears: lookbackYears,
		CutoffYear:    cutoff,
	}

	if s.cache != nil {
		if ranked, ok := s.cache.GetStats(ctx, cutoff); ok {
			result.Locations = ranked
			return result, nil
		}
	}

	stats, err := s.source.LocationStats(ctx, cutoff)
	if err != nil {
		s.log.Warn("recommendation source failed", zap.Int("cutoff_year", cutoff), zap.Error(err))
		return nil, apperrors.SourceUnavailable(err, "location statistics are unavailable")
	}

	result.Locations = RankLocations(stats, MaxRecommendedLocations)

	if s.cache != nil {
		s.cache.SetStats(ctx, cutoff, result.Locations)
	}
	return result, nil
}
