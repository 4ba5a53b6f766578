package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/zapply/ingest-api/config"
	"github.com/zapply/ingest-api/internal/adapters/reaper"
	schedrunner "github.com/zapply/ingest-api/internal/adapters/scheduler"
	"github.com/zapply/ingest-api/internal/observability/statsd"
	"github.com/zapply/ingest-api/internal/service"
)

// SchedulerRunnerConfig contains configuration for the scheduler loop.
type SchedulerRunnerConfig struct {
	DB       *sql.DB
	Pipeline service.PipelineTrigger
	Settings *service.SettingsService
	Config   config.SchedulerConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// RunScheduler starts the pipeline scheduler loop and blocks until ctx ends.
func RunScheduler(ctx context.Context, cfg SchedulerRunnerConfig) error {
	runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
		DB:       cfg.DB,
		Pipeline: cfg.Pipeline,
		Settings: cfg.Settings,
		Config:   cfg.Config,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create scheduler runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperRunnerConfig contains configuration for the run reaper loop.
type ReaperRunnerConfig struct {
	DB      *sql.DB
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// RunReaper starts the run reaper loop and blocks until ctx ends.
func RunReaper(ctx context.Context, cfg ReaperRunnerConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
