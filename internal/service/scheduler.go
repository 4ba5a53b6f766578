// Package service provides business logic services for the ingestion pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zapply/ingest-api/config"
	"github.com/zapply/ingest-api/internal/core"
	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
	obserrors "github.com/zapply/ingest-api/internal/observability/errors"
	"github.com/zapply/ingest-api/internal/observability/statsd"
)

// PipelineTrigger starts a pipeline run. Satisfied by PipelineService.
type PipelineTrigger interface {
	Execute(ctx context.Context, trigger model.TriggerType) (*model.Run, error)
}

// SchedulerServiceOptions groups dependencies for SchedulerService.
type SchedulerServiceOptions struct {
	Pipeline PipelineTrigger    // Required: run executor
	Settings *SettingsService   // Required: run_frequency lookup
	Runs     core.RunRepository // Required: last scheduled run lookup

	Config       config.SchedulerConfig
	Logger       *slog.Logger      // Optional: structured logger
	Metrics      statsd.Sink       // Optional: metrics sink
	TimeProvider data.TimeProvider // Optional: defaults to real time
}

// SchedulerService fires pipeline runs on the configured cadence. The
// cadence lives in app_settings (run_frequency: manual/hourly/daily) so
// operators can change it without a redeploy; the scheduler re-reads it on
// every tick. Multiple replicas may tick concurrently; the pipeline lock
// ensures only one of them actually runs.
type SchedulerService struct {
	pipeline     PipelineTrigger
	settings     *SettingsService
	runs         core.RunRepository
	config       config.SchedulerConfig
	logger       *slog.Logger
	metrics      statsd.Sink
	timeProvider data.TimeProvider
}

// NewSchedulerService constructs a new SchedulerService.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	switch {
	case opts.Pipeline == nil:
		return nil, errors.New("pipeline trigger is required")
	case opts.Settings == nil:
		return nil, errors.New("SettingsService is required")
	case opts.Runs == nil:
		return nil, errors.New("RunRepository is required")
	}

	tp := opts.TimeProvider
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "scheduler_service")
	}

	return &SchedulerService{
		pipeline:     opts.Pipeline,
		settings:     opts.Settings,
		runs:         opts.Runs,
		config:       opts.Config,
		logger:       logger,
		metrics:      opts.Metrics,
		timeProvider: tp,
	}, nil
}

// Run ticks until ctx is canceled.
func (s *SchedulerService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "scheduler started",
			"interval", s.config.Interval,
			"daily_fire_hour_utc", s.config.DailyFireHourUTC,
		)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return suppressContextCancellation(ctx.Err())
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick evaluates the cadence once and fires a run when one is due. A lock
// conflict is a no-op, not an error: another replica (or an operator) beat
// us to it and scheduled runs never queue behind an active one.
func (s *SchedulerService) Tick(ctx context.Context) error {
	frequency, err := s.settings.RunFrequency(ctx)
	if err != nil {
		s.emitTick("error", err)
		return fmt.Errorf("read run frequency: %w", err)
	}

	trigger, due, err := s.evaluate(ctx, frequency)
	if err != nil {
		s.emitTick("error", err)
		return err
	}
	if !due {
		s.emitTick("noop", nil)
		return nil
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "firing scheduled pipeline run", "trigger_type", trigger)
	}

	run, err := s.pipeline.Execute(ctx, trigger)
	switch {
	case errors.Is(err, ErrPipelineAlreadyRunning):
		if s.logger != nil {
			s.logger.InfoContext(ctx, "scheduled run skipped: pipeline already running")
		}
		s.emitTick("noop", nil)
		return nil
	case err != nil:
		// The run record (if one was created) already carries the failure;
		// the tick itself still reports it.
		s.emitTick("error", err)
		return fmt.Errorf("scheduled run: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "scheduled run finished", "run_id", run.ID, "status", run.Status)
	}
	s.emitTick("success", nil)
	return nil
}

// evaluate decides whether the configured cadence makes a run due right now.
func (s *SchedulerService) evaluate(ctx context.Context, frequency string) (model.TriggerType, bool, error) {
	if frequency == model.RunFrequencyManual {
		return "", false, nil
	}

	latest, err := s.runs.LatestScheduled(ctx)
	if err != nil {
		return "", false, fmt.Errorf("load latest scheduled run: %w", err)
	}

	now := s.timeProvider.Now().UTC()
	switch frequency {
	case model.RunFrequencyHourly:
		if latest == nil || now.Sub(latest.StartedAt) >= time.Hour {
			return model.TriggerScheduledHourly, true, nil
		}
	case model.RunFrequencyDaily:
		if now.Hour() != s.config.DailyFireHourUTC {
			return "", false, nil
		}
		if latest == nil || !sameUTCDay(latest.StartedAt, now) {
			return model.TriggerScheduledDaily, true, nil
		}
	}
	return "", false, nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (s *SchedulerService) emitTick(result string, err error) {
	if s.metrics == nil {
		return
	}
	tags := map[string]string{"result": result}
	if err != nil {
		tags["error_class"] = obserrors.Classify(err)
	}
	s.metrics.Count("scheduler.tick", 1, tags)
}
