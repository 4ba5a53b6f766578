package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zapply/ingest-api/config"
	"github.com/zapply/ingest-api/internal/adapters/sources"
	"github.com/zapply/ingest-api/internal/core"
	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
	apperrors "github.com/zapply/ingest-api/internal/errors"
	obserrors "github.com/zapply/ingest-api/internal/observability/errors"
	"github.com/zapply/ingest-api/internal/observability/metrics"
	"github.com/zapply/ingest-api/internal/observability/notify"
	"github.com/zapply/ingest-api/internal/observability/statsd"
	"github.com/zapply/ingest-api/internal/service/failurenotifier"
	"github.com/zapply/ingest-api/internal/urlutil"
)

// Pipeline precondition failures. These surface before any Run record is
// created; nothing is persisted and nothing needs rolling back.
var (
	// ErrPipelineAlreadyRunning means another process holds the pipeline lock.
	ErrPipelineAlreadyRunning = apperrors.Conflict("a pipeline run is already in progress")
	// ErrNoProfile means no user profile exists to match postings against.
	ErrNoProfile = apperrors.Validation("no profile is configured; create one before running the pipeline")
	// ErrNoEnabledSources means no enabled source has a registered adapter.
	ErrNoEnabledSources = apperrors.Validation("no enabled sources are available")
)

// PipelineServiceOptions groups dependencies for PipelineService.
type PipelineServiceOptions struct {
	Runs       core.RunRepository       // Required
	SourceRuns core.SourceRunRepository // Required
	Jobs       core.JobRepository       // Required
	Sources    core.SourceRepository    // Required
	Profiles   core.ProfileRepository   // Required
	Lock       core.PipelineLock        // Required
	Registry   *sources.Registry        // Required: available source adapters
	Settings   *SettingsService         // Required: job limit / look-back overrides

	Matcher  core.Matcher            // Optional: scoring stage; nil skips matching
	Reaper   *ReaperService          // Optional: pre-run stale-state cleanup
	Notifier *failurenotifier.Service // Optional: run failure fan-out
	Resolver *urlutil.Resolver       // Optional: redirect resolution for cross-source dedup

	Config        config.PipelineConfig
	MatcherConfig config.MatcherConfig
	Logger        *slog.Logger       // Optional: structured logger
	Metrics       statsd.Sink        // Optional: metrics sink (StatsD-compatible)
	TimeProvider  data.TimeProvider  // Optional: defaults to real time
}

// PipelineService orchestrates one ingestion run end to end: lock
// acquisition with stale-holder recovery, parallel per-source scraping,
// the sequential dedup/save pass, the matching hand-off, and finalization.
type PipelineService struct {
	runs       core.RunRepository
	sourceRuns core.SourceRunRepository
	jobs       core.JobRepository
	sources    core.SourceRepository
	profiles   core.ProfileRepository
	lock       core.PipelineLock
	registry   *sources.Registry
	settings   *SettingsService
	matcher    core.Matcher
	reaper     *ReaperService
	notifier   *failurenotifier.Service
	resolver   *urlutil.Resolver

	config        config.PipelineConfig
	matcherConfig config.MatcherConfig
	logger        *slog.Logger
	metrics       statsd.Sink
	timeProvider  data.TimeProvider
}

// NewPipelineService constructs a new PipelineService.
func NewPipelineService(opts PipelineServiceOptions) (*PipelineService, error) {
	switch {
	case opts.Runs == nil:
		return nil, errors.New("RunRepository is required")
	case opts.SourceRuns == nil:
		return nil, errors.New("SourceRunRepository is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Sources == nil:
		return nil, errors.New("SourceRepository is required")
	case opts.Profiles == nil:
		return nil, errors.New("ProfileRepository is required")
	case opts.Lock == nil:
		return nil, errors.New("PipelineLock is required")
	case opts.Registry == nil:
		return nil, errors.New("source registry is required")
	case opts.Settings == nil:
		return nil, errors.New("SettingsService is required")
	}

	tp := opts.TimeProvider
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "pipeline_service")
	}

	return &PipelineService{
		runs:          opts.Runs,
		sourceRuns:    opts.SourceRuns,
		jobs:          opts.Jobs,
		sources:       opts.Sources,
		profiles:      opts.Profiles,
		lock:          opts.Lock,
		registry:      opts.Registry,
		settings:      opts.Settings,
		matcher:       opts.Matcher,
		reaper:        opts.Reaper,
		notifier:      opts.Notifier,
		resolver:      opts.Resolver,
		config:        opts.Config,
		matcherConfig: opts.MatcherConfig,
		logger:        logger,
		metrics:       opts.Metrics,
		timeProvider:  tp,
	}, nil
}

// Execute runs one ingestion pipeline. It returns the finalized run record.
// Precondition failures (lock held, no profile, no enabled sources) return an
// error without creating a run. Per-source failures degrade the run to
// partial; only structural failures finalize it as failed, and those are
// returned to the caller after finalization. The lock is released on every
// path once acquired.
func (s *PipelineService) Execute(ctx context.Context, trigger model.TriggerType) (*model.Run, error) {
	if !trigger.Valid() {
		return nil, apperrors.Validationf("invalid trigger type: %s", trigger)
	}

	start := s.timeProvider.Now()

	// Reconcile stale state left by crashed prior runs before competing for
	// the lock, so a dead run's record cannot block a fresh trigger.
	s.reapStale(ctx)

	if err := s.acquireLock(ctx); err != nil {
		s.emitRun(trigger, "acquire_lock", metrics.ResultError, 0, err)
		return nil, err
	}
	defer s.releaseLock(ctx)

	selected, err := s.checkPreconditions(ctx)
	if err != nil {
		s.emitRun(trigger, "preconditions", metrics.ResultError, 0, err)
		return nil, err
	}

	// Settings are read once per invocation, never mid-run.
	jobLimit, err := s.settings.JobLimit(ctx)
	if err != nil {
		return nil, err
	}
	lookBackDays, err := s.settings.LookBackDays(ctx, s.config.LookBackDays)
	if err != nil {
		return nil, err
	}

	run, err := s.runs.Create(ctx, &model.CreateRunRequest{TriggerType: trigger})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "pipeline run started",
			"run_id", run.ID,
			"trigger_type", trigger,
			"sources", len(selected),
			"job_limit", jobLimit,
			"look_back_days", lookBackDays,
		)
	}
	s.appendRunLog(ctx, run.ID, model.LogLevelInfo,
		fmt.Sprintf("run started: trigger=%s sources=%d look_back_days=%d", trigger, len(selected), lookBackDays))

	outcomes := s.scrapeAll(ctx, run, selected, scrapeParams{
		JobLimit:     jobLimit,
		LookBackDays: lookBackDays,
	})

	stats, err := s.savePass(ctx, run, outcomes)
	if err != nil {
		return s.failRun(ctx, run, trigger, start, fmt.Errorf("save pass: %w", err))
	}

	if err := s.runs.UpdateStats(ctx, run.ID, stats); err != nil {
		return s.failRun(ctx, run, trigger, start, fmt.Errorf("update run stats: %w", err))
	}

	if err := s.runMatching(ctx, run, stats); err != nil {
		return s.failRun(ctx, run, trigger, start, err)
	}

	return s.finalize(ctx, run, trigger, start, stats)
}

// acquireLock takes the pipeline lock, attempting one stale-holder recovery
// when the first try fails: if no run is actually running, the holding
// session is presumed orphaned and forcibly terminated, then the acquire is
// retried once. Still failing means another pipeline genuinely is active.
func (s *PipelineService) acquireLock(ctx context.Context) error {
	acquired, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire pipeline lock: %w", err)
	}
	if acquired {
		return nil
	}

	active, err := s.runs.ActiveRunExists(ctx)
	if err != nil {
		return fmt.Errorf("check active run during lock recovery: %w", err)
	}
	if active {
		return ErrPipelineAlreadyRunning
	}

	terminated, err := s.lock.TerminateStaleHolder(ctx)
	if err != nil {
		return fmt.Errorf("terminate stale lock holder: %w", err)
	}
	if terminated && s.logger != nil {
		s.logger.WarnContext(ctx, "recovered orphaned pipeline lock")
	}

	acquired, err = s.lock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire pipeline lock after recovery: %w", err)
	}
	if !acquired {
		return ErrPipelineAlreadyRunning
	}
	return nil
}

// releaseLock releases regardless of how the run ended. A canceled request
// context must not leak the lock, so release uses a detached context.
func (s *PipelineService) releaseLock(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.lock.Release(releaseCtx); err != nil && s.logger != nil {
		s.logger.Error("failed to release pipeline lock", "error", err)
	}
}

func (s *PipelineService) reapStale(ctx context.Context) {
	if s.reaper == nil {
		return
	}
	if err := s.reaper.RunCleanup(ctx); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "pre-run stale cleanup failed", "error", err)
	}
}

// checkPreconditions verifies a profile exists and at least one enabled
// source has a registered adapter, returning the sources to scrape in
// priority order.
func (s *PipelineService) checkPreconditions(ctx context.Context) ([]*model.Source, error) {
	profile, err := s.profiles.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, ErrNoProfile
	}

	enabled, err := s.sources.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled sources: %w", err)
	}

	selected := make([]*model.Source, 0, len(enabled))
	for _, src := range enabled {
		if _, err := s.registry.Get(src.Name); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "enabled source has no registered adapter, skipping",
					"source", src.Name)
			}
			continue
		}
		selected = append(selected, src)
	}
	if len(selected) == 0 {
		return nil, ErrNoEnabledSources
	}
	return selected, nil
}

// runMatching hands the run to the scoring stage when at least one new
// posting survived deduplication. Skips are recorded explicitly in the run
// log, never silently.
func (s *PipelineService) runMatching(ctx context.Context, run *model.Run, stats *model.RunStats) error {
	switch {
	case s.matcher == nil || !s.matcherConfig.Enabled:
		s.appendRunLog(ctx, run.ID, model.LogLevelInfo, "matching skipped: matcher disabled")
		return nil
	case stats.JobsNew == 0:
		s.appendRunLog(ctx, run.ID, model.LogLevelInfo, "matching skipped: no new jobs")
		return nil
	}

	if err := s.runs.SetPhase(ctx, run.ID, model.RunPhaseMatching); err != nil {
		return fmt.Errorf("enter matching phase: %w", err)
	}
	run.Phase = model.RunPhaseMatching
	s.appendRunLog(ctx, run.ID, model.LogLevelInfo,
		fmt.Sprintf("matching %d new jobs", stats.JobsNew))

	matchStats, err := s.matcher.MatchRun(ctx, run)
	if err != nil {
		return fmt.Errorf("matching: %w", err)
	}

	stats.Merge(matchStats)
	if err := s.runs.UpdateStats(ctx, run.ID, stats); err != nil {
		return fmt.Errorf("update run stats after matching: %w", err)
	}
	s.appendRunLog(ctx, run.ID, model.LogLevelInfo,
		fmt.Sprintf("matching finished: matched=%d rejected=%d errored=%d",
			matchStats.Matched, matchStats.Rejected, matchStats.Errored))
	return nil
}

// finalize computes the terminal status: completed when every source
// succeeded, partial when at least one failed. Structural failures never
// reach here; they go through failRun.
func (s *PipelineService) finalize(
	ctx context.Context,
	run *model.Run,
	trigger model.TriggerType,
	start time.Time,
	stats *model.RunStats,
) (*model.Run, error) {
	status := model.RunStatusCompleted
	if stats.SourcesFailed > 0 {
		status = model.RunStatusPartial
	}

	s.appendRunLog(ctx, run.ID, model.LogLevelInfo,
		fmt.Sprintf("run finished: status=%s new=%d duplicate=%d failed_sources=%d",
			status, stats.JobsNew, stats.JobsDuplicate, stats.SourcesFailed))

	finalized, err := s.runs.Finalize(ctx, &model.FinalizeRunRequest{
		ID:     run.ID,
		Status: status,
	})
	if err != nil {
		return s.failRun(ctx, run, trigger, start, fmt.Errorf("finalize run: %w", err))
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "pipeline run finished",
			"run_id", run.ID,
			"status", status,
			"jobs_new", stats.JobsNew,
			"jobs_duplicate", stats.JobsDuplicate,
			"sources_failed", stats.SourcesFailed,
		)
	}
	s.emitRun(trigger, "finalize", metrics.ResultSuccess, s.timeProvider.Now().Sub(start), nil)
	return finalized, nil
}

// failRun finalizes the run as failed with the structural error, notifies
// the failure sinks, and returns the error to the caller.
func (s *PipelineService) failRun(
	ctx context.Context,
	run *model.Run,
	trigger model.TriggerType,
	start time.Time,
	cause error,
) (*model.Run, error) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "pipeline run failed",
			"run_id", run.ID,
			"error", cause,
		)
	}

	message := cause.Error()
	s.appendRunLog(ctx, run.ID, model.LogLevelError, "run failed: "+message)

	finalized, err := s.runs.Finalize(ctx, &model.FinalizeRunRequest{
		ID:           run.ID,
		Status:       model.RunStatusFailed,
		ErrorMessage: &message,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to finalize failed run", "run_id", run.ID, "error", err)
		}
		finalized = run
	}

	s.notifyFailure(ctx, finalized, trigger, cause)
	s.emitRun(trigger, "finalize", metrics.ResultError, s.timeProvider.Now().Sub(start), cause)
	return finalized, cause
}

func (s *PipelineService) notifyFailure(ctx context.Context, run *model.Run, trigger model.TriggerType, cause error) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	s.notifier.NotifyRunFailure(ctx, notify.RunFailurePayload{
		RunID:       run.ID,
		TriggerType: string(trigger),
		Phase:       string(run.Phase),
		Error:       cause.Error(),
		ErrorClass:  obserrors.Classify(cause),
		Severity:    notify.SeverityCritical,
		OccurredAt:  s.timeProvider.Now().UTC(),
	})
}

// appendRunLog appends to the run's audit trail. The trail is best-effort
// relative to the run itself; an append failure is logged and swallowed.
func (s *PipelineService) appendRunLog(ctx context.Context, runID string, level model.LogLevel, message string) {
	entry := model.RunLogEntry{
		Timestamp: s.timeProvider.Now().UTC(),
		Level:     level,
		Message:   message,
	}
	if err := s.runs.AppendLog(ctx, runID, entry); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to append run log", "run_id", runID, "error", err)
	}
}

func (s *PipelineService) emitRun(trigger model.TriggerType, stage, result string, elapsed time.Duration, err error) {
	metrics.EmitRunLifecycle(s.metrics, metrics.RunMetric{
		TriggerType: string(trigger),
		Stage:       stage,
		Result:      result,
		Duration:    elapsed,
		Err:         err,
	})
}
