// Package failurenotifier fans run failure notifications out to the
// configured alerting sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zapply/ingest-api/internal/observability/notify"
)

// SinkRegistration pairs a sink with the name used in delivery logs.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches run failure events to every registered sink. A sink
// that fails to deliver is logged and never blocks the others.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs a failure notifier, dropping nil sinks.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	svc := &Service{logger: logger}
	for _, reg := range opts.Sinks {
		if reg.Sink == nil {
			continue
		}
		if reg.Name == "" {
			reg.Name = "sink"
		}
		svc.sinks = append(svc.sinks, reg)
	}
	return svc
}

// NotifyRunFailure delivers the payload to all sinks concurrently and
// returns once every delivery attempt has finished.
func (s *Service) NotifyRunFailure(ctx context.Context, payload notify.RunFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, reg := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reg.Sink.SendRunFailure(ctx, payload); err != nil {
				s.logger.Error("failure notification not delivered",
					"sink", reg.Name,
					"run_id", payload.RunID,
					"trigger_type", payload.TriggerType,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether any sinks are registered.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
