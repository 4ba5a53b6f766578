package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapply/ingest-api/internal/data/pgxutil"
	"github.com/zapply/ingest-api/internal/domain/model"
	apperrors "github.com/zapply/ingest-api/internal/errors"
)

// SourceRunRepo provides database operations for per-source run records.
type SourceRunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewSourceRunRepo creates a new SourceRunRepo instance with the given database connection.
func NewSourceRunRepo(db *sql.DB, cfg RepoConfig) *SourceRunRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &SourceRunRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const sourceRunColumns = `
  id,
  run_id,
  source,
  status,
  jobs_found,
  jobs_new,
  jobs_duplicate,
  jobs_failed,
  logs,
  error_message,
  started_at,
  completed_at
`

// Create inserts a new source run in running state under the given run.
func (r *SourceRunRepo) Create(ctx context.Context, req *model.CreateSourceRunRequest) (*model.SourceRun, error) {
	if req == nil {
		return nil, errors.New("create source run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	startedAt := r.timeProvider.Now().UTC()

	var sr model.SourceRun
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO source_runs (id, run_id, source, status, logs, started_at)
			VALUES ($1, $2, $3, $4, '[]'::jsonb, $5)
			RETURNING `+sourceRunColumns,
			id, req.RunID, req.Source, model.SourceRunStatusRunning, startedAt)
		if err != nil {
			return err
		}
		defer rows.Close()
		sr, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.SourceRun])
		return err
	})
	if err != nil {
		if apperrors.IsForeignKeyViolation(err) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to create source run: %w", err)
	}
	return &sr, nil
}

// GetByID retrieves a source run by its ID.
func (r *SourceRunRepo) GetByID(ctx context.Context, id string) (*model.SourceRun, error) {
	var sr model.SourceRun
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+sourceRunColumns+` FROM source_runs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		sr, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.SourceRun])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSourceRunNotFound
		}
		return nil, fmt.Errorf("failed to get source run by ID: %w", err)
	}
	return &sr, nil
}

// ListByRun retrieves all source runs belonging to a run, oldest first.
func (r *SourceRunRepo) ListByRun(ctx context.Context, runID string) ([]*model.SourceRun, error) {
	var sourceRuns []*model.SourceRun
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+sourceRunColumns+`
			FROM source_runs
			WHERE run_id = $1
			ORDER BY started_at`, runID)
		if err != nil {
			return err
		}
		defer rows.Close()
		sourceRuns, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.SourceRun])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list source runs: %w", err)
	}
	return sourceRuns, nil
}

// AppendLog appends entries to the source run's ordered audit trail.
func (r *SourceRunRepo) AppendLog(ctx context.Context, id string, entries ...model.RunLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal log entries: %w", err)
	}

	return r.execExpectingRow(ctx,
		`UPDATE source_runs SET logs = logs || $2::jsonb WHERE id = $1`,
		"append source run log", id, payload)
}

// Complete marks a source run as completed and records its final job counts.
func (r *SourceRunRepo) Complete(ctx context.Context, id string, counts model.SourceRunCounts) error {
	completedAt := r.timeProvider.Now().UTC()

	return r.execExpectingRow(ctx, `
		UPDATE source_runs
		SET status = $2,
		    jobs_found = $3,
		    jobs_new = $4,
		    jobs_duplicate = $5,
		    jobs_failed = $6,
		    completed_at = $7
		WHERE id = $1`,
		"complete source run",
		id, model.SourceRunStatusCompleted,
		counts.Found, counts.New, counts.Duplicate, counts.Failed, completedAt)
}

// Fail marks a source run as failed with the given error message.
func (r *SourceRunRepo) Fail(ctx context.Context, id string, errorMessage string) error {
	if errorMessage == "" {
		return errors.New("error message is required")
	}
	completedAt := r.timeProvider.Now().UTC()

	return r.execExpectingRow(ctx, `
		UPDATE source_runs
		SET status = $2,
		    error_message = $3,
		    completed_at = $4
		WHERE id = $1`,
		"fail source run",
		id, model.SourceRunStatusFailed, errorMessage, completedAt)
}

func (r *SourceRunRepo) execExpectingRow(ctx context.Context, query, label string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", label, err)
	}
	if affected == 0 {
		return ErrSourceRunNotFound
	}
	return nil
}
