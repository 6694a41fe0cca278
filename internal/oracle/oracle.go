// Package oracle provides the pricing model behind every valuation.
package oracle

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rohanjaggi/hdb-prediction/internal/metrics"
)

// FeatureNames is the column order the model was trained with
var FeatureNames = []string{
	"storey_median",
	"floor_area_sqm",
	"remaining_lease",
	"town_enc",
	"flat_type_enc",
}

// Features is the five-value input of one prediction
type Features struct {
	Storey         int
	AreaSqm        int
	RemainingLease int
	LocationCode   int
	UnitTypeCode   int
}

// Vector returns the features in FeatureNames order
func (f Features) Vector() []float64 {
	return []float64{
		float64(f.Storey),
		float64(f.AreaSqm),
		float64(f.RemainingLease),
		float64(f.LocationCode),
		float64(f.UnitTypeCode),
	}
}

// Oracle predicts an open-market price from features
type Oracle interface {
	Predict(ctx context.Context, f Features) (float64, error)
}

// Memo caches predictions of a deterministic Oracle.
type Memo struct {
	next  Oracle
	cache *lru.Cache[Features, float64]
}

// NewMemo wraps next with an LRU cache holding up to size predictions.
// A size below 1 disables caching and returns next unchanged.
func NewMemo(next Oracle, size int) (Oracle, error) {
	if size < 1 {
		return next, nil
	}
	cache, err := lru.New[Features, float64](size)
	if err != nil {
		return nil, err
	}
	return &Memo{next: next, cache: cache}, nil
}

// Predict implements Oracle
func (m *Memo) Predict(ctx context.Context, f Features) (float64, error) {
	if price, ok := m.cache.Get(f); ok {
		metrics.CacheLookups.WithLabelValues("oracle", "hit").Inc()
		return price, nil
	}
	metrics.CacheLookups.WithLabelValues("oracle", "miss").Inc()

	price, err := m.next.Predict(ctx, f)
	if err != nil {
		return 0, err
	}
	m.cache.Add(f, price)
	return price, nil
}
