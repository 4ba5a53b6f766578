package core

import (
	"context"
	"time"

	"github.com/zapply/ingest-api/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// RunRepository defines the interface for pipeline run data operations.
type RunRepository interface {
	Create(ctx context.Context, req *model.CreateRunRequest) (*model.Run, error)
	GetByID(ctx context.Context, id string) (*model.Run, error)
	List(ctx context.Context, opts *model.RunListOptions) ([]*model.Run, error)
	SetPhase(ctx context.Context, id string, phase model.RunPhase) error
	UpdateStats(ctx context.Context, id string, stats *model.RunStats) error
	AppendLog(ctx context.Context, id string, entries ...model.RunLogEntry) error
	Finalize(ctx context.Context, req *model.FinalizeRunRequest) (*model.Run, error)
	// ActiveRunExists reports whether any run currently has status=running.
	// Used by the lock's stale-holder recovery path.
	ActiveRunExists(ctx context.Context) (bool, error)
	// LatestScheduled returns the most recent run with a scheduled trigger type,
	// or nil when none exists. The scheduler uses it to decide whether to fire.
	LatestScheduled(ctx context.Context) (*model.Run, error)
}

// RunReaperRepository defines the cleanup operations the reaper depends on.
type RunReaperRepository interface {
	// FailStaleRuns marks running runs older than maxAge as failed.
	FailStaleRuns(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	// DeleteOldRuns deletes terminal runs older than maxAge.
	DeleteOldRuns(ctx context.Context, params DeleteOldRunsParams) (int64, error)
}

// DeleteOldRunsParams groups parameters for DeleteOldRuns to keep param count <=3.
type DeleteOldRunsParams struct {
	Statuses  []model.RunStatus
	MaxAge    time.Duration
	BatchSize int
}

// SourceRunRepository defines the interface for per-source run data operations.
type SourceRunRepository interface {
	Create(ctx context.Context, req *model.CreateSourceRunRequest) (*model.SourceRun, error)
	GetByID(ctx context.Context, id string) (*model.SourceRun, error)
	ListByRun(ctx context.Context, runID string) ([]*model.SourceRun, error)
	AppendLog(ctx context.Context, id string, entries ...model.RunLogEntry) error
	// Complete marks the source run completed and stamps the final counts.
	Complete(ctx context.Context, id string, counts model.SourceRunCounts) error
	// Fail marks the source run failed with an error message.
	Fail(ctx context.Context, id, errMsg string) error
}

// JobRepository defines the interface for job posting data operations.
type JobRepository interface {
	Insert(ctx context.Context, job *model.NormalizedJob) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	GetBySourceKey(ctx context.Context, source, sourceID string) (*model.Job, error)
	// KnownSourceIDs returns the set of source_id values already persisted for a source.
	KnownSourceIDs(ctx context.Context, source string) (map[string]struct{}, error)
	// KnownResolvedURLs returns the set of non-null resolved_url values across all sources.
	KnownResolvedURLs(ctx context.Context) (map[string]struct{}, error)
	// ListByStatus returns jobs in the given status, oldest first.
	ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error)
	// RecordMatchOutcome stamps the matcher's verdict on a job.
	RecordMatchOutcome(ctx context.Context, outcome *model.MatchOutcome) error
}

// SourceRepository defines the interface for source configuration data operations.
type SourceRepository interface {
	Create(ctx context.Context, req *model.CreateSourceRequest) (*model.Source, error)
	GetByName(ctx context.Context, name string) (*model.Source, error)
	List(ctx context.Context) ([]*model.Source, error)
	// ListEnabled returns enabled sources ordered by priority, then name.
	ListEnabled(ctx context.Context) ([]*model.Source, error)
	Update(ctx context.Context, name string, req model.UpdateSourceRequest) (*model.Source, error)
	Delete(ctx context.Context, name string) (bool, error)
}

// SettingRepository defines the interface for the app_settings key-value store.
type SettingRepository interface {
	Get(ctx context.Context, key string) (*model.Setting, error)
	Set(ctx context.Context, key, value string) (*model.Setting, error)
	List(ctx context.Context) ([]*model.Setting, error)
}

// ProfileRepository defines the interface for user profile data operations.
type ProfileRepository interface {
	// Get returns the user profile, or nil when none has been created yet.
	Get(ctx context.Context) (*model.Profile, error)
	Create(ctx context.Context, req *model.CreateProfileRequest) (*model.Profile, error)
}

// PipelineLock is the cluster-wide mutual-exclusion primitive guaranteeing at
// most one pipeline execution across the process fleet. TryAcquire never
// blocks; false means another holder is active and the caller must abort.
// Release is safe to call from cleanup paths even when acquisition failed.
type PipelineLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	// TerminateStaleHolder forcibly ends the session holding the lock.
	// Callers must first verify no active run exists; the narrow race between
	// that check and termination is an accepted trade-off at pipeline cadence.
	TerminateStaleHolder(ctx context.Context) (bool, error)
}

// Matcher is the opaque scoring stage invoked once per run after the save
// pass. It appends its own log entries and returns aggregate counts that the
// orchestrator merges into the run stats.
type Matcher interface {
	MatchRun(ctx context.Context, run *model.Run) (model.MatchStats, error)
}

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}
