package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB wraps a PostgreSQL connection pool for run history.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// LogRun inserts a verification run record into the history.
func (db *DB) LogRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO verification_runs (id, fingerprint, mode, outcome, exit_code,
			duration_ms, diagnostics, first_error, source_bytes, cached,
			request_ip, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := db.pool.Exec(ctx, query,
		run.ID, run.Fingerprint, run.Mode, run.Outcome, run.ExitCode,
		run.DurationMS, run.Diagnostics,
		truncateForDB(run.FirstError, 4096),
		run.SourceBytes, run.Cached,
		run.RequestIP, run.CreatedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, fingerprint, mode, outcome, exit_code, duration_ms,
			diagnostics, first_error, source_bytes, cached,
			request_ip, created_at, completed_at
		FROM verification_runs WHERE id = $1`

	var run Run
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Fingerprint, &run.Mode, &run.Outcome, &run.ExitCode,
		&run.DurationMS, &run.Diagnostics, &run.FirstError,
		&run.SourceBytes, &run.Cached,
		&run.RequestIP, &run.CreatedAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns queries runs with optional filters.
func (db *DB) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `
		SELECT id, fingerprint, mode, outcome, exit_code, duration_ms,
			diagnostics, source_bytes, cached, created_at, completed_at
		FROM verification_runs
		WHERE ($1 = '' OR mode = $1)
		  AND ($2 = '' OR outcome = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, query,
		filter.Mode, filter.Outcome, limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.Fingerprint, &run.Mode, &run.Outcome, &run.ExitCode,
			&run.DurationMS, &run.Diagnostics, &run.SourceBytes, &run.Cached,
			&run.CreatedAt, &run.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		results = append(results, run)
	}

	return results, rows.Err()
}

func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
