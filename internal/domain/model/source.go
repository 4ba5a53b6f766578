package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// maxNameLen is the maximum allowed length for source names in characters.
	maxNameLen = 100
)

// Source represents one configured job board in the system. Rows mirror the
// registered adapters; SyncWithRegistry reconciles the two sets.
type Source struct {
	ID                    string          `json:"id"                      db:"id"`
	Name                  string          `json:"name"                    db:"name"`
	Label                 string          `json:"label"                   db:"label"`
	Description           string          `json:"description"             db:"description"`
	Enabled               bool            `json:"enabled"                 db:"enabled"`
	Priority              int             `json:"priority"                db:"priority"`
	Settings              json.RawMessage `json:"settings"                db:"settings"`
	CredentialsEnvPrefix  string          `json:"credentials_env_prefix"  db:"credentials_env_prefix"`
	CreatedAt             time.Time       `json:"created_at"              db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"              db:"updated_at"`
}

// CreateSourceRequest represents a request to create a new source row.
type CreateSourceRequest struct {
	Name                 string          `json:"name"`
	Label                string          `json:"label"`
	Description          string          `json:"description,omitempty"`
	Enabled              bool            `json:"enabled"`
	Priority             int             `json:"priority"`
	Settings             json.RawMessage `json:"settings,omitempty"`
	CredentialsEnvPrefix string          `json:"credentials_env_prefix,omitempty"`
}

// Validate validates the CreateSourceRequest fields.
func (r *CreateSourceRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required and cannot be empty")
	}
	if utf8.RuneCountInString(r.Name) > maxNameLen {
		return errors.New("name cannot exceed 100 characters")
	}
	if strings.TrimSpace(r.Label) == "" {
		return errors.New("label is required and cannot be empty")
	}
	if r.Priority < 0 {
		return errors.New("priority must be >= 0")
	}
	return nil
}

// UpdateSourceRequest represents a request to update an existing source.
type UpdateSourceRequest struct {
	Enabled  *bool           `json:"enabled,omitempty"`
	Priority *int            `json:"priority,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// HasUpdates returns true when at least one field is being updated.
func (r *UpdateSourceRequest) HasUpdates() bool {
	return r.Enabled != nil || r.Priority != nil || len(r.Settings) > 0
}

// Validate validates the UpdateSourceRequest fields.
func (r *UpdateSourceRequest) Validate() error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.Priority != nil && *r.Priority < 0 {
		return errors.New("priority must be >= 0")
	}
	if len(r.Settings) > 0 && !json.Valid(r.Settings) {
		return errors.New("settings must be valid JSON")
	}
	return nil
}

// SourceCredentials holds credentials resolved from the environment via the
// source's credentials_env_prefix.
type SourceCredentials struct {
	Username string
	Password string
	APIKey   string
	Token    string
}

// Empty returns true when no credential value is set.
func (c SourceCredentials) Empty() bool {
	return c.Username == "" && c.Password == "" && c.APIKey == "" && c.Token == ""
}
