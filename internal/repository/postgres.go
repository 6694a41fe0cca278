package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/rohanjaggi/hdb-prediction/internal/encoder"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
)

// PostgresRepository handles database operations
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	// Disable prepared statement caching to avoid "unnamed prepared statement does not exist" errors
	if strings.Contains(dsn, "://") {
		if !strings.Contains(dsn, "?") {
			dsn += "?prefer_simple_protocol=true"
		} else {
			dsn += "&prefer_simple_protocol=true"
		}
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute) // Shorter lifetime to avoid stale connections
	db.SetConnMaxIdleTime(2 * time.Minute) // Close idle connections sooner

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an existing connection
func NewPostgresRepositoryFromDB(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// TownCodes returns the town encoding used by the pricing model
func (r *PostgresRepository) TownCodes(ctx context.Context) ([]encoder.Category, error) {
	var rows []encoder.Category
	query := `SELECT DISTINCT town AS label, town_enc AS code FROM transactions_clean ORDER BY code`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load town codes: %w", err)
	}
	return rows, nil
}

// FlatTypeCodes returns the flat type encoding used by the pricing model
func (r *PostgresRepository) FlatTypeCodes(ctx context.Context) ([]encoder.Category, error) {
	var rows []encoder.Category
	query := `SELECT DISTINCT flat_type AS label, flat_type_enc AS code FROM transactions_clean ORDER BY code`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load flat type codes: %w", err)
	}
	return rows, nil
}

// LocationStats aggregates transactions per town; recent counts include
// years from cutoffYear onwards. Ordering is left to the caller.
func (r *PostgresRepository) LocationStats(ctx context.Context, cutoffYear int) ([]model.LocationStat, error) {
	var stats []model.LocationStat
	query := `
		SELECT
			town,
			COUNT(*) AS total_transactions,
			COUNT(*) FILTER (WHERE year >= $1) AS recent_transactions,
			COALESCE(AVG(resale_price), 0) AS avg_price
		FROM transactions_clean
		GROUP BY town
		ORDER BY town
	`
	if err := r.db.SelectContext(ctx, &stats, query, cutoffYear); err != nil {
		return nil, fmt.Errorf("failed to aggregate location stats: %w", err)
	}
	return stats, nil
}

// LogAnalysis stores one finished analysis
func (r *PostgresRepository) LogAnalysis(ctx context.Context, entry *model.AnalysisLog) error {
	query := `
		INSERT INTO analysis_logs (
			analysis_id, query, intent, template, bundle, error_kind,
			response_time_ms, query_embedding, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	// nil pointers must reach the driver as NULL
	var intent, bundle, embedding any
	if entry.Intent != nil {
		intent = *entry.Intent
	}
	if entry.Bundle != nil {
		bundle = *entry.Bundle
	}
	if entry.QueryEmbedding != nil {
		embedding = *entry.QueryEmbedding
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.AnalysisID,
		entry.Query,
		intent,
		entry.Template,
		bundle,
		nullIfEmpty(entry.ErrorKind),
		entry.ResponseTimeMs,
		embedding,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log analysis: %w", err)
	}
	return nil
}

// LogFeedback records whether the user found an answer helpful
func (r *PostgresRepository) LogFeedback(ctx context.Context, analysisID string, helpful bool, comment string) (bool, error) {
	query := `
		UPDATE analysis_logs
		SET helpful = $2, feedback_comment = $3, feedback_at = NOW()
		WHERE analysis_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, analysisID, helpful, nullIfEmpty(comment))
	if err != nil {
		return false, fmt.Errorf("failed to log feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to log feedback: %w", err)
	}
	return n > 0, nil
}

// SimilarAnalyses returns past successful analyses closest to embedding
func (r *PostgresRepository) SimilarAnalyses(ctx context.Context, embedding []float32, limit int) ([]model.AnalysisSummary, error) {
	var rows []model.AnalysisSummary
	query := `
		SELECT analysis_id, query, template, query_embedding <-> $1 AS distance, created_at
		FROM analysis_logs
		WHERE query_embedding IS NOT NULL AND error_kind IS NULL
		ORDER BY query_embedding <-> $1
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &rows, query, pgvector.NewVector(embedding), limit); err != nil {
		return nil, fmt.Errorf("failed to search similar analyses: %w", err)
	}
	return rows, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
