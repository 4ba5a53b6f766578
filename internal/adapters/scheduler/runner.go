// Package scheduler provides an adapter for running the pipeline scheduler loop.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zapply/ingest-api/config"
	"github.com/zapply/ingest-api/internal/core"
	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/observability/statsd"
	"github.com/zapply/ingest-api/internal/service"
)

// Runner constructs the scheduler service and runs its tick loop.
type Runner struct {
	scheduler *service.SchedulerService
	logger    *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Pipeline service.PipelineTrigger   // Required: run executor
	Settings *service.SettingsService  // Required: run_frequency lookup
	Config   config.SchedulerConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// One of Runs or DB is required; DB wires the default run repository.
	Runs core.RunRepository
	DB   *sql.DB
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Runs == nil && opts.DB == nil {
		return nil, errors.New("run repository or database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	runs := opts.Runs
	if runs == nil {
		runs = data.NewRunRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	scheduler, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Pipeline: opts.Pipeline,
		Settings: opts.Settings,
		Runs:     runs,
		Config:   opts.Config,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire scheduler service: %w", err)
	}

	return &Runner{scheduler: scheduler, logger: opts.Logger}, nil
}

// Run starts the scheduler loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scheduler runner")
	return r.scheduler.Run(ctx)
}
