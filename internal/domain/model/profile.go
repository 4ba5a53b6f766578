package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Profile is the user profile prerequisite for pipeline execution and the
// matcher's scoring input. A pipeline attempt with no profile fails its
// precondition check before any run record is created.
type Profile struct {
	ID                 string          `json:"id"                            db:"id"`
	Name               string          `json:"name"                          db:"name"`
	Email              string          `json:"email"                         db:"email"`
	Location           string          `json:"location"                      db:"location"`
	Rate               string          `json:"rate"                          db:"rate"`
	Skills             []string        `json:"skills"                        db:"skills"`
	Preferences        json.RawMessage `json:"preferences,omitempty"         db:"preferences"`
	CustomInstructions *string         `json:"custom_instructions,omitempty" db:"custom_instructions"`
	CreatedAt          time.Time       `json:"created_at"                    db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"                    db:"updated_at"`
}

// CreateProfileRequest represents a request to create the user profile.
type CreateProfileRequest struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Location    string          `json:"location,omitempty"`
	Rate        string          `json:"rate,omitempty"`
	Skills      []string        `json:"skills,omitempty"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

// Validate validates the CreateProfileRequest fields.
func (r *CreateProfileRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(r.Email) == "" || !strings.Contains(r.Email, "@") {
		return errors.New("a valid email is required")
	}
	return nil
}
