package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

// Schema creates the run log table
const Schema = `
CREATE TABLE IF NOT EXISTS batch_logs (
	id            BIGSERIAL PRIMARY KEY,
	run_id        TEXT        NOT NULL,
	batch_index   INTEGER     NOT NULL,
	model         TEXT        NOT NULL,
	tier          TEXT        NOT NULL,
	strategy      TEXT        NOT NULL,
	requests      INTEGER     NOT NULL,
	skipped       INTEGER     NOT NULL,
	failed        INTEGER     NOT NULL,
	cost_tokens   INTEGER     NOT NULL,
	latency_ms    INTEGER     NOT NULL,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS batch_logs_run_id_idx ON batch_logs (run_id);
`

// ErrRunNotFound is returned when no batch rows exist for a run id
var ErrRunNotFound = errors.New("run not found")

type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn}, nil
}

// NewWithConn wraps an already opened connection
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate creates the run log schema if it does not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate run log: %w", err)
	}
	return nil
}

// LogBatch records one dispatched batch
func (db *DB) LogBatch(ctx context.Context, log *models.BatchLog) error {
	query := `
		INSERT INTO batch_logs (
			run_id, batch_index, model, tier, strategy, requests, skipped,
			failed, cost_tokens, latency_ms, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := db.conn.ExecContext(ctx,
		query,
		log.RunID,
		log.BatchIndex,
		log.Model,
		log.Tier,
		log.Strategy,
		log.Requests,
		log.Skipped,
		log.Failed,
		log.CostTokens,
		log.LatencyMs,
		log.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// GetRunSummary aggregates the batch rows of a run
func (db *DB) GetRunSummary(ctx context.Context, runID string) (*models.RunSummary, error) {
	query := `
		SELECT model, COUNT(*), COALESCE(SUM(requests), 0), COALESCE(SUM(skipped), 0),
		       COALESCE(SUM(failed), 0), COALESCE(SUM(cost_tokens), 0)
		FROM batch_logs
		WHERE run_id = $1
		GROUP BY model
	`

	summary := models.RunSummary{RunID: runID}
	err := db.conn.QueryRowContext(ctx, query, runID).Scan(
		&summary.Model,
		&summary.Batches,
		&summary.Requests,
		&summary.Skipped,
		&summary.Failed,
		&summary.CostTokens,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &summary, nil
}
