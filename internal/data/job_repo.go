package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapply/ingest-api/internal/data/pgxutil"
	"github.com/zapply/ingest-api/internal/domain/model"
	apperrors "github.com/zapply/ingest-api/internal/errors"
)

// JobRepo provides database operations for normalized job postings.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  source,
  source_id,
  url,
  resolved_url,
  title,
  company,
  description,
  requirements,
  location,
  salary,
  tags,
  raw_data,
  status,
  match_score,
  match_reasoning,
  matched_at,
  created_at,
  updated_at
`

// Insert persists a normalized posting with status=new. A (source, source_id)
// collision returns ErrJobExists so callers can count the duplicate without
// treating it as a failure.
func (r *JobRepo) Insert(ctx context.Context, job *model.NormalizedJob) (*model.Job, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := r.timeProvider.Now().UTC()

	tags := job.Tags
	if tags == nil {
		tags = []string{}
	}
	rawData := job.RawData
	if len(rawData) == 0 {
		rawData = []byte("{}")
	}

	var created model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO jobs (
				id, source, source_id, url, resolved_url,
				title, company, description, requirements, location, salary,
				tags, raw_data, status, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
			RETURNING `+jobColumns,
			id, job.Source, job.SourceID, job.URL, job.ResolvedURL,
			job.Title, job.Company, job.Description, job.Requirements, job.Location, job.Salary,
			tags, rawData, model.JobStatusNew, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		created, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		return err
	})
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, ErrJobExists
		}
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return &created, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	return r.getOne(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
}

// GetBySourceKey retrieves a job by its source-scoped identity.
func (r *JobRepo) GetBySourceKey(ctx context.Context, source, sourceID string) (*model.Job, error) {
	return r.getOne(ctx, `SELECT `+jobColumns+` FROM jobs WHERE source = $1 AND source_id = $2`, source, sourceID)
}

// KnownSourceIDs returns the set of source_id values already persisted for a source.
func (r *JobRepo) KnownSourceIDs(ctx context.Context, source string) (map[string]struct{}, error) {
	return r.collectSet(ctx, `SELECT source_id FROM jobs WHERE source = $1`, source)
}

// KnownResolvedURLs returns the set of non-null resolved_url values across all sources.
func (r *JobRepo) KnownResolvedURLs(ctx context.Context) (map[string]struct{}, error) {
	return r.collectSet(ctx, `SELECT DISTINCT resolved_url FROM jobs WHERE resolved_url IS NOT NULL`)
}

// ListByStatus returns jobs in the given status, oldest first.
func (r *JobRepo) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid job status: %s", status)
	}
	if limit <= 0 {
		limit = 100
	}

	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE status = $1
			ORDER BY created_at
			LIMIT $2`, status, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		jobs, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	return jobs, nil
}

// RecordMatchOutcome stamps the matcher's verdict on a job.
func (r *JobRepo) RecordMatchOutcome(ctx context.Context, outcome *model.MatchOutcome) error {
	if outcome == nil {
		return errors.New("match outcome is required")
	}
	if err := outcome.Validate(); err != nil {
		return err
	}

	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2,
		    match_score = $3,
		    match_reasoning = $4,
		    matched_at = $5,
		    updated_at = $5
		WHERE id = $1 AND status = 'new'`,
		outcome.JobID, outcome.Status, outcome.Score, outcome.Reasoning, now)
	if err != nil {
		return fmt.Errorf("record match outcome: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record match outcome rows affected: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *JobRepo) getOne(ctx context.Context, query string, args ...any) (*model.Job, error) {
	var job model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (r *JobRepo) collectSet(ctx context.Context, query string, args ...any) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("collect set: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan set value: %w", err)
		}
		set[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate set: %w", err)
	}
	return set, nil
}
