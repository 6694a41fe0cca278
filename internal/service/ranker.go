package service

import (
	"sort"

	"github.com/rohanjaggi/hdb-prediction/internal/model"
)

// MaxRecommendedLocations caps the recommendation shortlist
const MaxRecommendedLocations = 10

// RankLocations orders towns by fewest recent transactions, then by lowest
// average price, and keeps the first limit. Ties keep source order. The
// input slice is not modified.
func RankLocations(stats []model.LocationStat, limit int) []model.LocationStat {
	ranked := make([]model.LocationStat, len(stats))
	copy(ranked, stats)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RecentTransactions != ranked[j].RecentTransactions {
			return ranked[i].RecentTransactions < ranked[j].RecentTransactions
		}
		return ranked[i].AvgPrice < ranked[j].AvgPrice
	})

	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
