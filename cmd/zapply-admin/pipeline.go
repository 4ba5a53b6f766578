package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/zapply/ingest-api/internal/bootstrap"
	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
	"github.com/zapply/ingest-api/internal/service"
)

type pipelineRunOptions struct {
	Timeout time.Duration
}

type runListCmdOptions struct {
	Limit  int
	Status string
}

type runShowOptions struct {
	RunID string
}

const defaultPipelineTimeout = 30 * time.Minute

func runPipelineOnce(cmdCtx *commandContext, args []string) error {
	opts, err := parsePipelineRunFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, redisClient, err := connectInfra(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cmdCtx.Config,
		DB:          db,
		RedisClient: redisClient,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	cmdCtx.Logger.Info("triggering manual pipeline run")

	run, execErr := services.Pipeline.Execute(ctx, model.TriggerManual)
	if execErr != nil {
		switch {
		case errors.Is(execErr, service.ErrPipelineAlreadyRunning):
			return errors.New("pipeline already running; try again once the active run finishes")
		case errors.Is(execErr, service.ErrNoProfile):
			return errors.New("no profile configured; seed one with db-seed before running")
		case errors.Is(execErr, service.ErrNoEnabledSources):
			return errors.New("no enabled sources; enable at least one with source-set")
		}
		if run != nil {
			// Run finished in a failed state; show the record alongside the error.
			if printErr := printRunSummary(os.Stdout, run); printErr != nil {
				cmdCtx.Logger.Warn("print run summary failed", "error", printErr)
			}
		}
		return fmt.Errorf("pipeline run: %w", execErr)
	}

	return printRunSummary(os.Stdout, run)
}

func runListRuns(cmdCtx *commandContext, args []string) error {
	opts, err := parseRunListFlags(args)
	if err != nil {
		return err
	}

	listOpts := &model.RunListOptions{Limit: opts.Limit}
	if opts.Status != "" {
		status := model.RunStatus(opts.Status)
		listOpts.Status = &status
	}

	return withDatabase(cmdCtx, 2*time.Minute, func(ctx context.Context, db *sql.DB) error {
		runs, listErr := data.NewRunRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}).List(ctx, listOpts)
		if listErr != nil {
			return listErr
		}
		return printRunTable(os.Stdout, runs)
	})
}

func runShowRun(cmdCtx *commandContext, args []string) error {
	opts, err := parseRunShowFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, 2*time.Minute, func(ctx context.Context, db *sql.DB) error {
		run, getErr := data.NewRunRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}).GetByID(ctx, opts.RunID)
		if getErr != nil {
			return getErr
		}
		sourceRuns, srErr := data.NewSourceRunRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}).ListByRun(ctx, run.ID)
		if srErr != nil {
			return srErr
		}
		return printRunDetail(os.Stdout, run, sourceRuns)
	})
}

func printRunSummary(w io.Writer, run *model.Run) error {
	if run == nil {
		return writeln(w, "no run record produced")
	}

	if err := writef(w, "\nRun %s\n", run.ID); err != nil {
		return err
	}
	if err := writef(w, "  status:  %s\n  phase:   %s\n  trigger: %s\n", run.Status, run.Phase, run.TriggerType); err != nil {
		return err
	}
	if run.ErrorMessage != nil {
		if err := writef(w, "  error:   %s\n", *run.ErrorMessage); err != nil {
			return err
		}
	}
	if run.DurationSeconds != nil {
		if err := writef(w, "  elapsed: %.1fs\n", *run.DurationSeconds); err != nil {
			return err
		}
	}

	var stats model.RunStats
	if len(run.Stats) > 0 && json.Unmarshal(run.Stats, &stats) == nil {
		if err := writef(
			w,
			"  sources: %d total, %d succeeded, %d failed\n  jobs:    %d found, %d new, %d duplicate, %d failed\n",
			stats.SourcesTotal, stats.SourcesSucceeded, stats.SourcesFailed,
			stats.JobsFound, stats.JobsNew, stats.JobsDuplicate, stats.JobsFailed,
		); err != nil {
			return err
		}
		if stats.Matched+stats.Rejected+stats.Errored > 0 {
			if err := writef(
				w,
				"  matcher: %d matched, %d rejected, %d errored\n",
				stats.Matched, stats.Rejected, stats.Errored,
			); err != nil {
				return err
			}
		}
	}
	return nil
}

func printRunTable(w io.Writer, runs []*model.Run) error {
	if len(runs) == 0 {
		return writeln(w, "(no runs found)")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tSTATUS\tPHASE\tTRIGGER\tSTARTED\tDURATION"); err != nil {
		return err
	}
	for _, run := range runs {
		duration := "-"
		if run.DurationSeconds != nil {
			duration = fmt.Sprintf("%.1fs", *run.DurationSeconds)
		}
		if err := writef(
			tw,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.Status,
			run.Phase,
			run.TriggerType,
			run.StartedAt.UTC().Format(time.RFC3339),
			duration,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printRunDetail(w io.Writer, run *model.Run, sourceRuns []*model.SourceRun) error {
	if err := printRunSummary(w, run); err != nil {
		return err
	}

	if err := writef(w, "\nRun log (%d entries)\n", len(run.Logs)); err != nil {
		return err
	}
	if err := printLogEntries(w, run.Logs); err != nil {
		return err
	}

	for _, sr := range sourceRuns {
		if err := writef(
			w,
			"\nSource %s (%s): found=%d new=%d duplicate=%d failed=%d\n",
			sr.Source, sr.Status, sr.JobsFound, sr.JobsNew, sr.JobsDuplicate, sr.JobsFailed,
		); err != nil {
			return err
		}
		if sr.ErrorMessage != nil {
			if err := writef(w, "  error: %s\n", *sr.ErrorMessage); err != nil {
				return err
			}
		}
		if err := printLogEntries(w, sr.Logs); err != nil {
			return err
		}
	}
	return nil
}

func printLogEntries(w io.Writer, logs model.RunLog) error {
	for _, entry := range logs {
		if err := writef(
			w,
			"  %s [%s] %s\n",
			entry.Timestamp.UTC().Format(time.RFC3339),
			entry.Level,
			entry.Message,
		); err != nil {
			return err
		}
	}
	return nil
}

func parsePipelineRunFlags(args []string) (pipelineRunOptions, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := pipelineRunOptions{
		Timeout: defaultPipelineTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultPipelineTimeout,
		"Maximum duration to wait for the pipeline run to finish",
	)

	if err := fs.Parse(args); err != nil {
		return pipelineRunOptions{}, err
	}

	if opts.Timeout <= 0 {
		return pipelineRunOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseRunListFlags(args []string) (runListCmdOptions, error) {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := runListCmdOptions{}
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum number of runs to list")
	fs.StringVar(&opts.Status, "status", "", "Filter by run status (running, completed, partial, failed)")

	if err := fs.Parse(args); err != nil {
		return runListCmdOptions{}, err
	}

	if opts.Status != "" && !model.RunStatus(opts.Status).Valid() {
		return runListCmdOptions{}, fmt.Errorf("invalid --status value %q", opts.Status)
	}

	return opts, nil
}

func parseRunShowFlags(args []string) (runShowOptions, error) {
	fs := flag.NewFlagSet("run-show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := runShowOptions{}
	fs.StringVar(&opts.RunID, "id", "", "Run ID to display")

	if err := fs.Parse(args); err != nil {
		return runShowOptions{}, err
	}

	if opts.RunID == "" {
		return runShowOptions{}, errors.New("--id is required")
	}

	return opts, nil
}
