package model

import (
	"errors"
	"strings"
	"time"
)

// SourceRunStatus represents the outcome of one source's scrape within a run.
type SourceRunStatus string

const (
	// SourceRunStatusRunning indicates the source task is still executing.
	SourceRunStatusRunning SourceRunStatus = "running"
	// SourceRunStatusCompleted indicates the source task finished successfully.
	SourceRunStatusCompleted SourceRunStatus = "completed"
	// SourceRunStatusFailed indicates the source task failed.
	SourceRunStatusFailed SourceRunStatus = "failed"
)

// Valid returns true if the SourceRunStatus is valid.
func (s SourceRunStatus) Valid() bool {
	return s == SourceRunStatusRunning || s == SourceRunStatusCompleted ||
		s == SourceRunStatusFailed
}

// SourceRun records one source adapter's contribution to a run.
// Unique per (run, source); cascade-deleted with its parent run.
// One source's failure never blocks a sibling's completion.
type SourceRun struct {
	ID              string          `json:"id"                         db:"id"`
	RunID           string          `json:"run_id"                     db:"run_id"`
	Source          string          `json:"source"                     db:"source"`
	Status          SourceRunStatus `json:"status"                     db:"status"`
	JobsFound       int             `json:"jobs_found"                 db:"jobs_found"`
	JobsNew         int             `json:"jobs_new"                   db:"jobs_new"`
	JobsDuplicate   int             `json:"jobs_duplicate"             db:"jobs_duplicate"`
	JobsFailed      int             `json:"jobs_failed"                db:"jobs_failed"`
	ErrorMessage    *string         `json:"error_message,omitempty"    db:"error_message"`
	Logs            RunLog          `json:"logs"                       db:"logs"`
	StartedAt       time.Time       `json:"started_at"                 db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
}

// CreateSourceRunRequest represents a request to create a source run.
type CreateSourceRunRequest struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`
}

// Validate validates the CreateSourceRunRequest fields.
func (r *CreateSourceRunRequest) Validate() error {
	if strings.TrimSpace(r.RunID) == "" {
		return errors.New("run_id is required")
	}
	if strings.TrimSpace(r.Source) == "" {
		return errors.New("source is required")
	}
	return nil
}

// SourceRunCounts carries the final per-source counters written after the save pass.
type SourceRunCounts struct {
	Found     int `json:"found"`
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
}
