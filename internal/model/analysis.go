package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// AnalysisLog is one persisted assistant interaction
type AnalysisLog struct {
	AnalysisID     string            `db:"analysis_id"`
	Query          string            `db:"query"`
	Intent         *StructuredIntent `db:"intent"`
	Template       string            `db:"template"`
	Bundle         *ResultBundle     `db:"bundle"`
	ErrorKind      string            `db:"error_kind"`
	ResponseTimeMs int               `db:"response_time_ms"`
	QueryEmbedding *pgvector.Vector  `db:"query_embedding"`
	CreatedAt      time.Time         `db:"created_at"`
}

// AnalysisSummary is a past question returned by similarity search
type AnalysisSummary struct {
	AnalysisID string    `json:"analysis_id" db:"analysis_id"`
	Query      string    `json:"query" db:"query"`
	Template   string    `json:"template" db:"template"`
	Distance   float64   `json:"distance" db:"distance"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
