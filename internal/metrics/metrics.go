package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdb_analyses_total",
			Help: "Total number of assistant analyses by outcome",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hdb_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	ValuationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdb_valuations_total",
			Help: "Total number of scenario valuations by result",
		},
		[]string{"result"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdb_llm_calls_total",
			Help: "Total number of language model calls by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdb_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	ValuationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hdb_valuations_in_flight",
			Help: "Number of pricing oracle calls currently running",
		},
	)
)
