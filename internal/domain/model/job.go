package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// maxSourceIDLen is the maximum allowed length for source-scoped job identifiers.
	maxSourceIDLen = 200
	// maxURLLen is the maximum allowed length for job URLs.
	maxURLLen = 500
)

// JobStatus represents a posting's position in the downstream funnel.
type JobStatus string

const (
	// JobStatusNew indicates a freshly ingested posting awaiting matching.
	JobStatusNew JobStatus = "new"
	// JobStatusMatched indicates the matcher accepted the posting.
	JobStatusMatched JobStatus = "matched"
	// JobStatusRejected indicates the matcher rejected the posting.
	JobStatusRejected JobStatus = "rejected"
	// JobStatusApplied indicates the application agent submitted an application.
	JobStatusApplied JobStatus = "applied"
	// JobStatusFailed indicates downstream processing failed for the posting.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusNew || s == JobStatusMatched || s == JobStatusRejected ||
		s == JobStatusApplied || s == JobStatusFailed
}

// Job is a normalized job posting. (source, source_id) uniquely identifies a
// posting within its source. ResolvedURL is a best-effort canonical deep link
// used only for cross-source duplicate detection; it is not unique-constrained
// at the database level because resolution may legitimately fail.
type Job struct {
	ID             string          `json:"id"                        db:"id"`
	Source         string          `json:"source"                    db:"source"`
	SourceID       string          `json:"source_id"                 db:"source_id"`
	URL            string          `json:"url"                       db:"url"`
	ResolvedURL    *string         `json:"resolved_url,omitempty"    db:"resolved_url"`
	Title          string          `json:"title"                     db:"title"`
	Company        string          `json:"company"                   db:"company"`
	Description    string          `json:"description"               db:"description"`
	Requirements   *string         `json:"requirements,omitempty"    db:"requirements"`
	Location       *string         `json:"location,omitempty"        db:"location"`
	Salary         *string         `json:"salary,omitempty"          db:"salary"`
	Tags           []string        `json:"tags"                      db:"tags"`
	RawData        json.RawMessage `json:"raw_data,omitempty"        db:"raw_data"`
	Status         JobStatus       `json:"status"                    db:"status"`
	MatchScore     *float64        `json:"match_score,omitempty"     db:"match_score"`
	MatchReasoning *string         `json:"match_reasoning,omitempty" db:"match_reasoning"`
	MatchedAt      *time.Time      `json:"matched_at,omitempty"      db:"matched_at"`
	CreatedAt      time.Time       `json:"created_at"                db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                db:"updated_at"`
}

// SourceKey returns the composite same-source identity.
func (j *Job) SourceKey() string {
	return j.Source + "/" + j.SourceID
}

// NormalizedJob is a source adapter's output: one posting in the shared
// normalized shape, before deduplication and persistence.
type NormalizedJob struct {
	Source       string          `json:"source"`
	SourceID     string          `json:"source_id"`
	URL          string          `json:"url"`
	ResolvedURL  *string         `json:"resolved_url,omitempty"`
	Title        string          `json:"title"`
	Company      string          `json:"company"`
	Description  string          `json:"description"`
	Requirements *string         `json:"requirements,omitempty"`
	Location     *string         `json:"location,omitempty"`
	Salary       *string         `json:"salary,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	RawData      json.RawMessage `json:"raw_data,omitempty"`
}

// Validate validates the NormalizedJob fields required for persistence.
func (n *NormalizedJob) Validate() error {
	if strings.TrimSpace(n.Source) == "" {
		return errors.New("source is required")
	}
	if strings.TrimSpace(n.SourceID) == "" {
		return errors.New("source_id is required")
	}
	if utf8.RuneCountInString(n.SourceID) > maxSourceIDLen {
		return errors.New("source_id cannot exceed 200 characters")
	}
	if strings.TrimSpace(n.URL) == "" {
		return errors.New("url is required")
	}
	if utf8.RuneCountInString(n.URL) > maxURLLen {
		return errors.New("url cannot exceed 500 characters")
	}
	if strings.TrimSpace(n.Title) == "" {
		return errors.New("title is required")
	}
	return nil
}

// MatchOutcome carries the matcher's verdict for one job.
type MatchOutcome struct {
	JobID     string
	Status    JobStatus // matched or rejected
	Score     float64
	Reasoning string
}

// Validate validates the MatchOutcome fields.
func (m *MatchOutcome) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return errors.New("job id is required")
	}
	if m.Status != JobStatusMatched && m.Status != JobStatusRejected {
		return errors.New("match outcome status must be matched or rejected")
	}
	if m.Score < 0 || m.Score > 1 {
		return errors.New("match score must be between 0 and 1")
	}
	return nil
}
