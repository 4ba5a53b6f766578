package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
)

// Advisory lock identity for the pipeline mutual-exclusion lock. This is a
// session-level lock (pg_try_advisory_lock, not the xact variant) so it
// survives across the many transactions a pipeline run performs and dies with
// the backend session if the holder process crashes.
const (
	advisoryLockPipelineMajor = 2100
	advisoryLockPipelineMinor = 1
)

// PgPipelineLock implements core.PipelineLock on a dedicated pooled
// connection. Holding the raw *sql.Conn pins the advisory lock to one
// backend session; returning the conn to the pool would let unrelated
// queries ride the session that owns the lock.
type PgPipelineLock struct {
	DB     *sql.DB
	logger *slog.Logger

	mu   sync.Mutex
	conn *sql.Conn
}

// PgPipelineLockConfig holds optional configuration for PgPipelineLock.
type PgPipelineLockConfig struct {
	Logger *slog.Logger
}

// NewPgPipelineLock creates a new PgPipelineLock instance with the given database connection.
func NewPgPipelineLock(db *sql.DB, cfg PgPipelineLockConfig) *PgPipelineLock {
	return &PgPipelineLock{
		DB:     db,
		logger: cfg.Logger,
	}
}

// TryAcquire attempts to take the pipeline lock without blocking.
// Returns false when another session holds it.
func (l *PgPipelineLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return false, fmt.Errorf("pipeline lock already held by this process")
	}

	conn, err := l.DB.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock connection: %w", err)
	}

	var acquired bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1, $2)",
		advisoryLockPipelineMajor, advisoryLockPipelineMinor).Scan(&acquired)
	if err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Release unlocks the pipeline lock and returns the pinned connection to the
// pool. Calling Release without holding the lock is a no-op.
func (l *PgPipelineLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}

	var released bool
	err := l.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1, $2)",
		advisoryLockPipelineMajor, advisoryLockPipelineMinor).Scan(&released)
	closeErr := l.conn.Close()
	l.conn = nil

	if err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if !released && l.logger != nil {
		l.logger.Warn("advisory unlock reported no lock held")
	}
	if closeErr != nil {
		return fmt.Errorf("close lock connection: %w", closeErr)
	}
	return nil
}

// TerminateStaleHolder finds the backend session holding the pipeline lock
// and terminates it, freeing the lock for a retry. Returns true when a holder
// was found and terminated. Callers must first confirm no run is actually in
// progress; this exists to recover from holders that died without their
// session closing (e.g. a hard-killed process behind a connection pooler).
func (l *PgPipelineLock) TerminateStaleHolder(ctx context.Context) (bool, error) {
	rows, err := l.DB.QueryContext(ctx, `
		SELECT pid FROM pg_locks
		WHERE locktype = 'advisory'
		  AND classid = $1
		  AND objid = $2
		  AND objsubid = 2
		  AND granted
		  AND pid <> pg_backend_pid()`,
		advisoryLockPipelineMajor, advisoryLockPipelineMinor)
	if err != nil {
		return false, fmt.Errorf("find lock holder: %w", err)
	}
	defer rows.Close()

	var pids []int
	for rows.Next() {
		var pid int
		if err := rows.Scan(&pid); err != nil {
			return false, fmt.Errorf("scan lock holder pid: %w", err)
		}
		pids = append(pids, pid)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate lock holders: %w", err)
	}
	if len(pids) == 0 {
		return false, nil
	}

	terminated := false
	for _, pid := range pids {
		var ok bool
		if err := l.DB.QueryRowContext(ctx, "SELECT pg_terminate_backend($1)", pid).Scan(&ok); err != nil {
			return terminated, fmt.Errorf("terminate backend %d: %w", pid, err)
		}
		if ok {
			terminated = true
			if l.logger != nil {
				l.logger.Warn("terminated stale pipeline lock holder", "pid", pid)
			}
		}
	}
	return terminated, nil
}
