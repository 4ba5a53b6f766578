package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapply/ingest-api/internal/data/database"
	"github.com/zapply/ingest-api/internal/data/pgxutil"
	"github.com/zapply/ingest-api/internal/domain/model"
)

// RunRepo provides database operations for pipeline run records.
type RunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// RepoConfig holds configuration options shared by the repositories that
// stamp their own timestamps.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewRunRepo creates a new RunRepo instance with the given database connection and configuration.
func NewRunRepo(db *sql.DB, cfg RepoConfig) *RunRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &RunRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

// runColumnList drives both the plain SELECT projections and the list query builder.
var runColumnList = []string{
	"id",
	"status",
	"phase",
	"trigger_type",
	"stats",
	"logs",
	"error_message",
	"started_at",
	"completed_at",
	"duration_seconds",
}

var runColumns = strings.Join(runColumnList, ", ")

// Create inserts a new run in running/scraping state.
func (r *RunRepo) Create(ctx context.Context, req *model.CreateRunRequest) (*model.Run, error) {
	if req == nil {
		return nil, errors.New("create run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	startedAt := r.timeProvider.Now().UTC()

	var run model.Run
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO runs (id, status, phase, trigger_type, stats, logs, started_at)
			VALUES ($1, $2, $3, $4, '{}'::jsonb, '[]'::jsonb, $5)
			RETURNING `+runColumns,
			id, model.RunStatusRunning, model.RunPhaseScraping, req.TriggerType, startedAt)
		if err != nil {
			return err
		}
		defer rows.Close()
		run, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Run])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return &run, nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*model.Run, error) {
	var run model.Run
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		run, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Run])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run by ID: %w", err)
	}
	return &run, nil
}

// List retrieves runs with optional status/trigger filters, newest first.
func (r *RunRepo) List(ctx context.Context, opts *model.RunListOptions) ([]*model.Run, error) {
	if opts == nil {
		opts = &model.RunListOptions{}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.Normalize()

	queryOpts := []database.ListQueryOption{
		database.WithColumns(runColumnList...),
		database.WithOrderBy("started_at", "DESC"),
		database.WithLimit(opts.Limit),
		database.WithOffset(opts.Offset),
	}
	if opts.Status != nil {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("status", database.Equal, string(*opts.Status)),
		))
	}
	if opts.TriggerType != nil {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("trigger_type", database.Equal, string(*opts.TriggerType)),
		))
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("runs", queryOpts...))

	var runs []*model.Run
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		runs, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Run])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// SetPhase advances the run's phase.
func (r *RunRepo) SetPhase(ctx context.Context, id string, phase model.RunPhase) error {
	if !phase.Valid() {
		return fmt.Errorf("invalid run phase: %s", phase)
	}

	return r.execExpectingRow(ctx, `UPDATE runs SET phase = $2 WHERE id = $1`, "set run phase", id, phase)
}

// UpdateStats replaces the run's stats document.
func (r *RunRepo) UpdateStats(ctx context.Context, id string, stats *model.RunStats) error {
	if stats == nil {
		return errors.New("stats are required")
	}
	payload, err := stats.Marshal()
	if err != nil {
		return err
	}

	return r.execExpectingRow(ctx, `UPDATE runs SET stats = $2 WHERE id = $1`, "update run stats", id, payload)
}

// AppendLog appends entries to the run's ordered audit trail.
func (r *RunRepo) AppendLog(ctx context.Context, id string, entries ...model.RunLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal log entries: %w", err)
	}

	return r.execExpectingRow(ctx,
		`UPDATE runs SET logs = logs || $2::jsonb WHERE id = $1`,
		"append run log", id, payload)
}

// Finalize transitions the run to a terminal status, stamping completion time
// and duration. Failed runs carry an error message; completed/partial never do.
func (r *RunRepo) Finalize(ctx context.Context, req *model.FinalizeRunRequest) (*model.Run, error) {
	if req == nil {
		return nil, errors.New("finalize run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	completedAt := r.timeProvider.Now().UTC()

	var run model.Run
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			UPDATE runs
			SET status = $2,
			    error_message = $3,
			    completed_at = $4,
			    duration_seconds = EXTRACT(EPOCH FROM ($4::timestamptz - started_at))
			WHERE id = $1
			RETURNING `+runColumns,
			req.ID, req.Status, req.ErrorMessage, completedAt)
		if err != nil {
			return err
		}
		defer rows.Close()
		run, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Run])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to finalize run: %w", err)
	}
	return &run, nil
}

// ActiveRunExists reports whether any run currently has status=running.
func (r *RunRepo) ActiveRunExists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM runs WHERE status = $1)`, model.RunStatusRunning,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active run: %w", err)
	}
	return exists, nil
}

// LatestScheduled returns the most recent scheduler-triggered run, or nil when none exists.
func (r *RunRepo) LatestScheduled(ctx context.Context) (*model.Run, error) {
	var run model.Run
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+runColumns+`
			FROM runs
			WHERE trigger_type IN ($1, $2)
			ORDER BY started_at DESC
			LIMIT 1`,
			model.TriggerScheduledHourly, model.TriggerScheduledDaily)
		if err != nil {
			return err
		}
		defer rows.Close()
		run, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Run])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest scheduled run: %w", err)
	}
	return &run, nil
}

// execExpectingRow runs an UPDATE that must touch exactly one run row.
func (r *RunRepo) execExpectingRow(ctx context.Context, query, label string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", label, err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}
