package model

import (
	"errors"
	"strings"
	"time"
)

// Well-known app_settings keys read by the pipeline and scheduler.
const (
	// SettingJobLimit caps the number of postings collected per source per run.
	// Zero or missing means unlimited.
	SettingJobLimit = "job_limit"
	// SettingLookBackDays is how many days back source adapters look for postings.
	SettingLookBackDays = "look_back_days"
	// SettingRunFrequency selects the scheduler cadence: manual, hourly, or daily.
	SettingRunFrequency = "run_frequency"
)

// RunFrequency values accepted for SettingRunFrequency.
const (
	RunFrequencyManual = "manual"
	RunFrequencyHourly = "hourly"
	RunFrequencyDaily  = "daily"
)

// Setting is one application settings row. The settings store is read once
// per pipeline invocation, never mid-run.
type Setting struct {
	Key       string    `json:"key"        db:"key"`
	Value     string    `json:"value"      db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ValidateSettingKey validates a settings key.
func ValidateSettingKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("setting key is required")
	}
	if len(key) > 100 {
		return errors.New("setting key cannot exceed 100 characters")
	}
	return nil
}
