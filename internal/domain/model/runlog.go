package model

import "time"

// LogLevel is the severity of a run log entry.
type LogLevel string

const (
	// LogLevelInfo marks routine progress entries.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn marks degraded-but-continuing conditions.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError marks failures recorded on the run or source run.
	LogLevelError LogLevel = "error"
)

// Valid returns true if the LogLevel is valid.
func (l LogLevel) Valid() bool {
	return l == LogLevelInfo || l == LogLevelWarn || l == LogLevelError
}

// RunLogEntry is a single timestamped entry in a run's audit trail.
type RunLogEntry struct {
	Timestamp time.Time `json:"ts"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// RunLog is the ordered, append-only audit trail attached to runs and
// source runs. Entries are persisted as a JSONB array in insertion order.
type RunLog []RunLogEntry

// Append adds an entry with the given level and message stamped at now.
func (l *RunLog) Append(now time.Time, level LogLevel, message string) {
	if !level.Valid() {
		level = LogLevelInfo
	}
	*l = append(*l, RunLogEntry{Timestamp: now.UTC(), Level: level, Message: message})
}

// Len returns the number of entries.
func (l RunLog) Len() int { return len(l) }
