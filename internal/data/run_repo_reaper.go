package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zapply/ingest-api/internal/core"
	"github.com/zapply/ingest-api/internal/data/pgxutil"
	"github.com/zapply/ingest-api/internal/domain/model"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 2000 is reserved for zapply reaper operations; major key 2100 is
// the session-level pipeline lock (see pipeline_lock.go).
const (
	advisoryLockReaperMajor     = 2000
	advisoryLockReaperFailStale = 1 // minor key for FailStaleRuns
	advisoryLockReaperDelete    = 2 // minor key for DeleteOldRuns
)

const staleRunError = "Run exceeded maximum running time"

// FailStaleRuns marks running runs older than maxAge as failed.
// Processes up to batchSize runs per call to prevent long locks and I/O spikes.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the number of runs marked as failed.
func (r *RunRepo) FailStaleRuns(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if maxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		var locked bool
		if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperFailStale).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !locked {
			rowsAffected = 0
			return nil
		}

		currentTime := r.timeProvider.Now().UTC()
		cutoffTime := currentTime.Add(-maxAge)

		entry, err := json.Marshal([]model.RunLogEntry{{
			Timestamp: currentTime,
			Level:     model.LogLevelError,
			Message:   staleRunError,
		}})
		if err != nil {
			return fmt.Errorf("marshal reaper log entry: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			UPDATE runs
			SET status = 'failed',
				error_message = $1,
				completed_at = $2,
				duration_seconds = EXTRACT(EPOCH FROM ($2::timestamptz - started_at)),
				logs = logs || $3::jsonb
			WHERE id IN (
				SELECT id FROM runs
				WHERE status = 'running'
				  AND started_at < $4
				ORDER BY started_at
				LIMIT $5
			)
			RETURNING id
		`, staleRunError, currentTime, entry, cutoffTime, batchSize)
		if err != nil {
			return fmt.Errorf("fail stale runs: %w", err)
		}
		var reapedIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan reaped run id: %w", err)
			}
			reapedIDs = append(reapedIDs, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate reaped runs: %w", err)
		}
		rows.Close()
		rowsAffected = int64(len(reapedIDs))

		// Source runs still marked running under a reaped run are failed
		// alongside it so the audit trail never shows live children of a
		// dead parent.
		if len(reapedIDs) > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE source_runs
				SET status = 'failed',
					error_message = $1,
					completed_at = $2
				WHERE status = 'running'
				  AND run_id = ANY($3)
			`, staleRunError, currentTime, reapedIDs); err != nil {
				return fmt.Errorf("fail stale source runs: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteOldRuns deletes terminal runs older than maxAge. Child source_runs go
// with them via ON DELETE CASCADE.
// Processes up to batchSize runs per call to prevent long locks and I/O spikes.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the number of runs deleted.
func (r *RunRepo) DeleteOldRuns(ctx context.Context, params core.DeleteOldRunsParams) (int64, error) {
	if len(params.Statuses) == 0 {
		return 0, errors.New("at least one status is required")
	}
	for _, status := range params.Statuses {
		if !status.Terminal() {
			return 0, fmt.Errorf("cannot delete runs with non-terminal status: %s", status)
		}
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	statuses := make([]string, 0, len(params.Statuses))
	for _, status := range params.Statuses {
		statuses = append(statuses, string(status))
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		var locked bool
		if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDelete).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !locked {
			rowsAffected = 0
			return nil
		}

		cutoffTime := r.timeProvider.Now().Add(-params.MaxAge).UTC()

		res, err := tx.ExecContext(ctx, `
			DELETE FROM runs
			WHERE id IN (
				SELECT id FROM runs
				WHERE status = ANY($1)
				  AND (completed_at < $2 OR (completed_at IS NULL AND started_at < $2))
				ORDER BY COALESCE(completed_at, started_at)
				LIMIT $3
			)
		`, statuses, cutoffTime, params.BatchSize)
		if err != nil {
			return fmt.Errorf("delete old runs: %w", err)
		}

		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		rowsAffected = ra
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
