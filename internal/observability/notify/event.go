// Package notify defines the run failure notification payload and the sink
// interface its delivery targets implement.
package notify

import (
	"context"
	"time"
)

// SeverityCritical is the default severity attached to run failures.
const SeverityCritical = "critical"

// RunFailurePayload is the canonical shape of a pipeline run failure
// notification, shared by every sink.
type RunFailurePayload struct {
	RunID       string
	TriggerType string
	Phase       string
	Error       string
	ErrorClass  string
	Severity    string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// Sink delivers run failure notifications to one destination.
type Sink interface {
	SendRunFailure(ctx context.Context, payload RunFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, payload RunFailurePayload) error

// SendRunFailure implements Sink.
func (f SinkFunc) SendRunFailure(ctx context.Context, payload RunFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
