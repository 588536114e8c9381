// Package store keeps an audit trail of triage runs in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store records triage runs.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

var _ schemas.RunRecorder = (*Store)(nil)

// RunRecord is one row of triage_runs.
type RunRecord struct {
	RunID       string             `json:"run_id"`
	PipelineID  int                `json:"pipeline_id"`
	BuildID     int                `json:"build_id"`
	PRID        int                `json:"pr_id,omitempty"`
	ProjectName string             `json:"project_name"`
	Category    schemas.Category   `json:"category"`
	Confidence  float64            `json:"confidence"`
	Action      schemas.ActionKind `json:"action"`
	Details     string             `json:"details"`
	CreatedAt   time.Time          `json:"created_at"`
}

const sqlCreateRuns = `
    CREATE TABLE IF NOT EXISTS triage_runs (
        run_id       TEXT PRIMARY KEY,
        pipeline_id  INTEGER NOT NULL,
        build_id     INTEGER NOT NULL,
        pr_id        INTEGER NOT NULL DEFAULT 0,
        project_name TEXT NOT NULL,
        category     TEXT NOT NULL,
        confidence   DOUBLE PRECISION NOT NULL,
        action       TEXT NOT NULL,
        details      TEXT NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL
    );
`

const sqlInsertRun = `
    INSERT INTO triage_runs (run_id, pipeline_id, build_id, pr_id, project_name, category, confidence, action, details, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    ON CONFLICT (run_id) DO NOTHING;
`

const sqlRecentRuns = `
    SELECT run_id, pipeline_id, build_id, pr_id, project_name, category, confidence, action, details, created_at
    FROM triage_runs
    ORDER BY created_at DESC
    LIMIT $1;
`

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  time.Now,
	}, nil
}

// Migrate creates the triage_runs table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateRuns); err != nil {
		return fmt.Errorf("failed to create triage_runs: %w", err)
	}
	return nil
}

// RecordRun inserts one finished run.
func (s *Store) RecordRun(ctx context.Context, runID string, report schemas.FailureReport, result schemas.ClassificationResult, action schemas.RemediationAction) error {
	_, err := s.pool.Exec(ctx, sqlInsertRun,
		runID, report.PipelineID, report.BuildID, report.PRID, report.ProjectName,
		string(result.Category), result.Confidence,
		string(action.Kind), action.Details,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", runID, err)
	}
	s.log.Debug("Recorded triage run.", zap.String("run_id", runID))
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r        RunRecord
			category string
			action   string
		)
		if err := rows.Scan(&r.RunID, &r.PipelineID, &r.BuildID, &r.PRID, &r.ProjectName,
			&category, &r.Confidence, &action, &r.Details, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Category = schemas.Category(category)
		r.Action = schemas.ActionKind(action)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}
