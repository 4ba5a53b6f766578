package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zapply/ingest-api/internal/adapters/sources"
	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
	"github.com/zapply/ingest-api/internal/observability/metrics"
	"github.com/zapply/ingest-api/internal/urlutil"
)

// scrapeParams carries the per-run settings applied to every source task.
type scrapeParams struct {
	JobLimit     int
	LookBackDays int
}

// scrapeOutcome is one source task's result. Failures are recorded as state
// here, never returned as errors, so one source can never take down siblings.
type scrapeOutcome struct {
	source      *model.Source
	sourceRunID string
	jobs        []model.NormalizedJob
	knownIDs    map[string]struct{}
	failed      bool
	errMessage  string
	elapsed     time.Duration
}

// scrapeAll fans out one task per source and waits for all of them. The
// errgroup is a completion barrier only: tasks always return nil, so no
// failure cancels the group context for in-flight siblings.
func (s *PipelineService) scrapeAll(
	ctx context.Context,
	run *model.Run,
	selected []*model.Source,
	params scrapeParams,
) []*scrapeOutcome {
	outcomes := make([]*scrapeOutcome, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range selected {
		g.Go(func() error {
			outcomes[i] = s.runSourceScrape(gctx, run, src, params)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// runSourceScrape executes one source adapter inside its own timeout and
// panic boundary. Every exit path leaves a SourceRun in a terminal or
// save-pass-ready state and an explanation in the audit trail.
func (s *PipelineService) runSourceScrape(
	ctx context.Context,
	run *model.Run,
	src *model.Source,
	params scrapeParams,
) (outcome *scrapeOutcome) {
	started := s.timeProvider.Now()
	outcome = &scrapeOutcome{source: src}

	defer func() {
		outcome.elapsed = s.timeProvider.Now().Sub(started)
		if r := recover(); r != nil {
			s.failSource(ctx, run, outcome, fmt.Sprintf("adapter panic: %v", r))
		}
	}()

	sourceRun, err := s.sourceRuns.Create(ctx, &model.CreateSourceRunRequest{
		RunID:  run.ID,
		Source: src.Name,
	})
	if err != nil {
		s.failSource(ctx, run, outcome, fmt.Sprintf("create source run: %v", err))
		return outcome
	}
	outcome.sourceRunID = sourceRun.ID

	adapter, err := s.registry.Get(src.Name)
	if err != nil {
		s.failSource(ctx, run, outcome, fmt.Sprintf("resolve adapter: %v", err))
		return outcome
	}

	creds := credentialsFromEnv(src.CredentialsEnvPrefix)
	if adapter.RequiresLogin() && creds.Empty() {
		s.failSource(ctx, run, outcome,
			fmt.Sprintf("credentials not configured (env prefix %q)", src.CredentialsEnvPrefix))
		return outcome
	}

	knownIDs, err := s.jobs.KnownSourceIDs(ctx, src.Name)
	if err != nil {
		s.failSource(ctx, run, outcome, fmt.Sprintf("load known source ids: %v", err))
		return outcome
	}
	outcome.knownIDs = knownIDs

	scrapeCtx := ctx
	if s.config.SourceTimeout > 0 {
		var cancel context.CancelFunc
		scrapeCtx, cancel = context.WithTimeout(ctx, s.config.SourceTimeout)
		defer cancel()
	}

	req := sources.ScrapeRequest{
		LookBackDays: params.LookBackDays,
		JobLimit:     params.JobLimit,
		KnownIDs:     knownIDs,
		Credentials:  creds,
		Settings:     src.Settings,
		Progress:     s.progressLogger(ctx, sourceRun.ID),
	}

	jobs, err := adapter.Scrape(scrapeCtx, req)
	if err != nil {
		msg := fmt.Sprintf("scrape failed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(scrapeCtx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("scrape timed out after %s", s.config.SourceTimeout)
		}
		s.failSource(ctx, run, outcome, msg)
		return outcome
	}

	outcome.jobs = jobs
	s.appendSourceRunLog(ctx, sourceRun.ID, model.LogLevelInfo,
		fmt.Sprintf("scrape finished: %d postings collected", len(jobs)))
	return outcome
}

// failSource converts a task failure into persisted state: the SourceRun is
// failed (when it exists) and the parent run's trail records which source
// broke and why. The run itself keeps going.
func (s *PipelineService) failSource(ctx context.Context, run *model.Run, outcome *scrapeOutcome, message string) {
	outcome.failed = true
	outcome.errMessage = message
	outcome.jobs = nil

	if s.logger != nil {
		s.logger.WarnContext(ctx, "source scrape failed",
			"run_id", run.ID,
			"source", outcome.source.Name,
			"error", message,
		)
	}
	if outcome.sourceRunID != "" {
		if err := s.sourceRuns.Fail(ctx, outcome.sourceRunID, message); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to mark source run failed",
				"source_run_id", outcome.sourceRunID, "error", err)
		}
	}
	s.appendRunLog(ctx, run.ID, model.LogLevelError,
		fmt.Sprintf("source %s failed: %s", outcome.source.Name, message))
}

// progressLogger adapts adapter progress callbacks into source run log
// entries. The parent ctx is used rather than the scrape ctx so a timed-out
// adapter's final messages still land in the trail.
func (s *PipelineService) progressLogger(ctx context.Context, sourceRunID string) sources.Progress {
	return func(message string) {
		s.appendSourceRunLog(ctx, sourceRunID, model.LogLevelInfo, message)
	}
}

func (s *PipelineService) appendSourceRunLog(ctx context.Context, id string, level model.LogLevel, message string) {
	entry := model.RunLogEntry{
		Timestamp: s.timeProvider.Now().UTC(),
		Level:     level,
		Message:   message,
	}
	if err := s.sourceRuns.AppendLog(ctx, id, entry); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to append source run log", "source_run_id", id, "error", err)
	}
}

// savePass persists scraped postings sequentially across sources, in the
// priority order they were scraped in, so cross-source dedup is
// deterministic. Only errors outside the per-job loop are structural.
func (s *PipelineService) savePass(ctx context.Context, run *model.Run, outcomes []*scrapeOutcome) (*model.RunStats, error) {
	persistedURLs, err := s.jobs.KnownResolvedURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load known resolved urls: %w", err)
	}
	dedup := NewDeduplicator(persistedURLs)

	stats := &model.RunStats{SourcesTotal: len(outcomes)}
	for _, outcome := range outcomes {
		if outcome.failed {
			stats.SourcesFailed++
			metrics.EmitSourceScrape(s.metrics, metrics.SourceScrapeMetric{
				Source:   outcome.source.Name,
				Result:   metrics.ResultError,
				Duration: outcome.elapsed,
				Err:      errors.New(outcome.errMessage),
			})
			continue
		}

		dedup.AddSourceIDs(outcome.source.Name, outcome.knownIDs)
		counts := s.saveSourceJobs(ctx, dedup, outcome)

		if err := s.sourceRuns.Complete(ctx, outcome.sourceRunID, counts); err != nil {
			return nil, fmt.Errorf("complete source run for %s: %w", outcome.source.Name, err)
		}
		s.appendSourceRunLog(ctx, outcome.sourceRunID, model.LogLevelInfo,
			fmt.Sprintf("saved: new=%d duplicate=%d failed=%d", counts.New, counts.Duplicate, counts.Failed))

		stats.SourcesSucceeded++
		stats.JobsFound += counts.Found
		stats.JobsNew += counts.New
		stats.JobsDuplicate += counts.Duplicate
		stats.JobsFailed += counts.Failed
		metrics.EmitSourceScrape(s.metrics, metrics.SourceScrapeMetric{
			Source:   outcome.source.Name,
			Result:   metrics.ResultSuccess,
			Duration: outcome.elapsed,
			JobsNew:  counts.New,
		})
	}
	return stats, nil
}

// saveSourceJobs runs one source's postings through dedup and insertion.
// Individual insert errors count as job failures and never abort the pass.
func (s *PipelineService) saveSourceJobs(ctx context.Context, dedup *Deduplicator, outcome *scrapeOutcome) model.SourceRunCounts {
	counts := model.SourceRunCounts{Found: len(outcome.jobs)}
	for i := range outcome.jobs {
		job := &outcome.jobs[i]
		s.canonicalizeURL(ctx, job)

		verdict := dedup.Check(job)
		if verdict != VerdictNew {
			counts.Duplicate++
			s.appendSourceRunLog(ctx, outcome.sourceRunID, model.LogLevelInfo,
				fmt.Sprintf("skipped %s: %s", job.SourceID, verdict))
			continue
		}

		if _, err := s.jobs.Insert(ctx, job); err != nil {
			if errors.Is(err, data.ErrJobExists) {
				counts.Duplicate++
			} else {
				counts.Failed++
				s.appendSourceRunLog(ctx, outcome.sourceRunID, model.LogLevelWarn,
					fmt.Sprintf("failed to save %s: %v", job.SourceID, err))
			}
			continue
		}

		dedup.Observe(job)
		counts.New++
	}
	return counts
}

// canonicalizeURL fills in job.ResolvedURL for cross-source dedup. Adapters
// may have resolved already; otherwise the posting URL is followed through
// redirects. Resolution is best effort and a failure just leaves the field
// nil, excluding the job from cross-source comparison.
func (s *PipelineService) canonicalizeURL(ctx context.Context, job *model.NormalizedJob) {
	raw := job.URL
	if job.ResolvedURL != nil && *job.ResolvedURL != "" {
		raw = *job.ResolvedURL
	} else if s.resolver != nil && raw != "" {
		resolveCtx, cancel := context.WithTimeout(ctx, s.config.ResolveTimeout)
		resolved, err := s.resolver.Resolve(resolveCtx, raw)
		cancel()
		if err != nil {
			if s.logger != nil {
				s.logger.DebugContext(ctx, "url resolution failed",
					"source", job.Source, "source_id", job.SourceID, "error", err)
			}
			job.ResolvedURL = nil
			return
		}
		raw = resolved
	}
	if raw == "" {
		job.ResolvedURL = nil
		return
	}

	normalized, err := urlutil.Normalize(raw)
	if err != nil {
		job.ResolvedURL = nil
		return
	}
	job.ResolvedURL = &normalized
}

// credentialsFromEnv reads a source's credentials from the environment using
// its configured prefix, e.g. GREENHOUSE_API_KEY for prefix GREENHOUSE.
func credentialsFromEnv(prefix string) model.SourceCredentials {
	if prefix == "" {
		return model.SourceCredentials{}
	}
	return model.SourceCredentials{
		Username: os.Getenv(prefix + "_USERNAME"),
		Password: os.Getenv(prefix + "_PASSWORD"),
		APIKey:   os.Getenv(prefix + "_API_KEY"),
		Token:    os.Getenv(prefix + "_TOKEN"),
	}
}
