package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slotwatch/slotwatch/internal/availability"
)

// Schema creates the scan_results table. The full result is kept as JSONB;
// the other columns exist for ordering and ad hoc queries.
const Schema = `
CREATE TABLE IF NOT EXISTS scan_results (
	id               TEXT PRIMARY KEY,
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ NOT NULL,
	request_start    TIMESTAMPTZ NOT NULL,
	duration_minutes INTEGER NOT NULL,
	station_count    INTEGER NOT NULL,
	failure_count    INTEGER NOT NULL,
	available_count  INTEGER NOT NULL,
	result           JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS scan_results_started_at_idx ON scan_results (started_at DESC);
`

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new PostgreSQL scan history repository.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the table and index if they do not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create scan_results: %w", err)
	}
	return nil
}

// Save stores result, replacing any earlier row with the same ID.
func (r *PostgresRepository) Save(ctx context.Context, result *availability.ScanResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode scan %s: %w", result.ID, err)
	}

	query := `
		INSERT INTO scan_results (
			id, started_at, finished_at, request_start, duration_minutes,
			station_count, failure_count, available_count, result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			request_start = EXCLUDED.request_start,
			duration_minutes = EXCLUDED.duration_minutes,
			station_count = EXCLUDED.station_count,
			failure_count = EXCLUDED.failure_count,
			available_count = EXCLUDED.available_count,
			result = EXCLUDED.result
	`

	_, err = r.db.Exec(ctx, query,
		result.ID,
		result.StartedAt,
		result.FinishedAt,
		result.Request.Start,
		result.Request.DurationMinutes,
		len(result.Reports)+len(result.Failures),
		len(result.Failures),
		result.AvailableCount(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("save scan %s: %w", result.ID, err)
	}
	return nil
}

// Get retrieves a scan by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*availability.ScanResult, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT result FROM scan_results WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScanNotFound
		}
		return nil, err
	}
	return decode(payload)
}

// List returns the most recent scans, newest first.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*availability.ScanResult, error) {
	query := `
		SELECT result
		FROM scan_results
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, opts.EffectiveLimit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []*availability.ScanResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		scan, err := decode(payload)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scans, nil
}

func decode(payload []byte) (*availability.ScanResult, error) {
	var result availability.ScanResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode scan: %w", err)
	}
	return &result, nil
}
