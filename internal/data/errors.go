package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = errors.New("run not found")
	// ErrSourceRunNotFound is returned when a source run is not found.
	ErrSourceRunNotFound = errors.New("source run not found")
	// ErrJobNotFound is returned when a job posting is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when inserting a posting whose (source, source_id) already exists.
	ErrJobExists = errors.New("job already exists for source")
	// ErrSourceNotFound is returned when a source is not found.
	ErrSourceNotFound = errors.New("source not found")
	// ErrSourceNameExists is returned when attempting to create a source with a name that already exists.
	ErrSourceNameExists = errors.New("source name already exists")
	// ErrSettingNotFound is returned when a settings key is not present.
	ErrSettingNotFound = errors.New("setting not found")
	// ErrProfileExists is returned when attempting to create a second profile.
	ErrProfileExists = errors.New("profile already exists")
)
