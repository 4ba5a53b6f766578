// Package model defines the core data types and structures used throughout the zapply ingestion system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunStatus represents the outcome of a pipeline run.
type RunStatus string

// RunPhase represents the pipeline phase a run is currently in.
type RunPhase string

// TriggerType represents how a run was triggered.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type TriggerType string

const (
	// RunStatusRunning indicates a run is currently executing.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates a run finished with every source succeeding.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusPartial indicates a run finished with at least one source failing.
	RunStatusPartial RunStatus = "partial"
	// RunStatusFailed indicates a run aborted on a structural error.
	RunStatusFailed RunStatus = "failed"

	// RunPhaseScraping is the parallel source fan-out phase.
	RunPhaseScraping RunPhase = "scraping"
	// RunPhaseMatching is the scoring phase over newly ingested jobs.
	RunPhaseMatching RunPhase = "matching"
	// RunPhaseApplying is a downstream phase owned by the application agent.
	RunPhaseApplying RunPhase = "applying"
	// RunPhaseReporting is a downstream phase owned by the reporter.
	RunPhaseReporting RunPhase = "reporting"

	// TriggerManual indicates a run started by an operator.
	TriggerManual TriggerType = "manual"
	// TriggerScheduledHourly indicates a run fired by the hourly schedule.
	TriggerScheduledHourly TriggerType = "scheduled_hourly"
	// TriggerScheduledDaily indicates a run fired by the daily schedule.
	TriggerScheduledDaily TriggerType = "scheduled_daily"
)

// Valid returns true if the RunStatus is valid.
func (s RunStatus) Valid() bool {
	return s == RunStatusRunning || s == RunStatusCompleted || s == RunStatusPartial ||
		s == RunStatusFailed
}

// Terminal returns true if the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusPartial || s == RunStatusFailed
}

// Valid returns true if the RunPhase is valid.
func (p RunPhase) Valid() bool {
	return p == RunPhaseScraping || p == RunPhaseMatching || p == RunPhaseApplying ||
		p == RunPhaseReporting
}

// Valid returns true if the TriggerType is valid.
func (t TriggerType) Valid() bool {
	return t == TriggerManual || t == TriggerScheduledHourly || t == TriggerScheduledDaily
}

// Scheduled returns true for trigger types fired by the scheduler.
func (t TriggerType) Scheduled() bool {
	return t == TriggerScheduledHourly || t == TriggerScheduledDaily
}

// UnmarshalText implements encoding.TextUnmarshaler for TriggerType to allow env parsing.
func (t *TriggerType) UnmarshalText(text []byte) error {
	v := TriggerType(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid TriggerType: %q", v)
	}
	*t = v
	return nil
}

// Run represents one end-to-end execution of the ingestion pipeline.
// At most one run has status=running at any instant; the pipeline lock
// enforces this and the reaper reconciles crashed leftovers.
type Run struct {
	ID              string          `json:"id"                         db:"id"`
	Status          RunStatus       `json:"status"                     db:"status"`
	Phase           RunPhase        `json:"phase"                      db:"phase"`
	TriggerType     TriggerType     `json:"trigger_type"               db:"trigger_type"`
	Stats           json.RawMessage `json:"stats"                      db:"stats"`
	Logs            RunLog          `json:"logs"                       db:"logs"`
	ErrorMessage    *string         `json:"error_message,omitempty"    db:"error_message"`
	StartedAt       time.Time       `json:"started_at"                 db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	DurationSeconds *float64        `json:"duration_seconds,omitempty" db:"duration_seconds"`
}

// CreateRunRequest represents a request to create a new run.
type CreateRunRequest struct {
	TriggerType TriggerType `json:"trigger_type"`
}

// Validate validates the CreateRunRequest fields.
func (r *CreateRunRequest) Validate() error {
	if !r.TriggerType.Valid() {
		return errors.New("invalid trigger type")
	}
	return nil
}

// FinalizeRunRequest carries the terminal state for a run.
type FinalizeRunRequest struct {
	ID           string
	Status       RunStatus
	ErrorMessage *string
}

// Validate validates the FinalizeRunRequest fields.
func (r *FinalizeRunRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if !r.Status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q", r.Status)
	}
	if r.Status == RunStatusFailed && (r.ErrorMessage == nil || strings.TrimSpace(*r.ErrorMessage) == "") {
		return errors.New("failed runs require an error message")
	}
	if r.Status != RunStatusFailed && r.ErrorMessage != nil {
		return errors.New("only failed runs carry an error message")
	}
	return nil
}

// RunStats aggregates pipeline counters persisted on the run record.
type RunStats struct {
	SourcesTotal     int `json:"sources_total"`
	SourcesSucceeded int `json:"sources_succeeded"`
	SourcesFailed    int `json:"sources_failed"`

	JobsFound     int `json:"jobs_found"`
	JobsNew       int `json:"jobs_new"`
	JobsDuplicate int `json:"jobs_duplicate"`
	JobsFailed    int `json:"jobs_failed"`

	Matched  int `json:"matched,omitempty"`
	Rejected int `json:"rejected,omitempty"`
	Errored  int `json:"errored,omitempty"`
}

// MatchStats aggregates the matcher stage's counters.
type MatchStats struct {
	Matched  int `json:"matched"`
	Rejected int `json:"rejected"`
	Errored  int `json:"errored"`
}

// Merge folds matcher counters into the run stats.
func (s *RunStats) Merge(m MatchStats) {
	s.Matched += m.Matched
	s.Rejected += m.Rejected
	s.Errored += m.Errored
}

// Marshal encodes the stats for persistence.
func (s *RunStats) Marshal() (json.RawMessage, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal run stats: %w", err)
	}
	return b, nil
}
