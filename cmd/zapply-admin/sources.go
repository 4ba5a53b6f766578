package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/zapply/ingest-api/internal/bootstrap"
	"github.com/zapply/ingest-api/internal/domain/model"
	"github.com/zapply/ingest-api/internal/adapters/sources"
	"github.com/zapply/ingest-api/internal/service"
)

type sourceSetOptions struct {
	Name     string
	Enable   bool
	Disable  bool
	Priority int
}

func runListSources(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	svc, registry, cleanup, err := sourceService(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	list, err := svc.List(ctx)
	if err != nil {
		return err
	}
	return printSourceTable(os.Stdout, list, registry)
}

func runSyncSources(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	svc, _, cleanup, err := sourceService(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	if syncErr := svc.SyncWithRegistry(ctx); syncErr != nil {
		return syncErr
	}
	cmdCtx.Logger.Info("source registry sync completed")
	return nil
}

func runSetSource(cmdCtx *commandContext, args []string) error {
	opts, err := parseSourceSetFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	svc, _, cleanup, err := sourceService(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	req := model.UpdateSourceRequest{}
	if opts.Enable {
		enabled := true
		req.Enabled = &enabled
	}
	if opts.Disable {
		enabled := false
		req.Enabled = &enabled
	}
	if opts.Priority >= 0 {
		req.Priority = &opts.Priority
	}

	updated, err := svc.Update(ctx, opts.Name, req)
	if err != nil {
		return err
	}
	cmdCtx.Logger.Info("source updated",
		"source", updated.Name,
		"enabled", updated.Enabled,
		"priority", updated.Priority)
	return nil
}

// sourceService builds the source service plus the adapter registry so list
// output can flag rows whose adapter is missing.
func sourceService(cmdCtx *commandContext) (*service.SourceService, *sources.Registry, func(), error) {
	db, redisClient, err := connectInfra(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup := func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cmdCtx.Config,
		DB:          db,
		RedisClient: redisClient,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("build services: %w", err)
	}
	return services.Sources, services.Registry, cleanup, nil
}

func printSourceTable(w io.Writer, list []*model.Source, registry *sources.Registry) error {
	if len(list) == 0 {
		return writeln(w, "(no sources configured)")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "NAME\tLABEL\tENABLED\tPRIORITY\tADAPTER"); err != nil {
		return err
	}
	for _, src := range list {
		adapterStatus := "registered"
		if registry == nil {
			adapterStatus = "unknown"
		} else if _, lookupErr := registry.Get(src.Name); lookupErr != nil {
			adapterStatus = "missing"
		}
		if err := writef(
			tw,
			"%s\t%s\t%t\t%d\t%s\n",
			src.Name,
			src.Label,
			src.Enabled,
			src.Priority,
			adapterStatus,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func parseSourceSetFlags(args []string) (sourceSetOptions, error) {
	fs := flag.NewFlagSet("source-set", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := sourceSetOptions{Priority: -1}
	fs.StringVar(&opts.Name, "name", "", "Source name to update")
	fs.BoolVar(&opts.Enable, "enable", false, "Enable the source")
	fs.BoolVar(&opts.Disable, "disable", false, "Disable the source")
	fs.IntVar(&opts.Priority, "priority", -1, "Set dedup priority (lower wins; negative leaves unchanged)")

	if err := fs.Parse(args); err != nil {
		return sourceSetOptions{}, err
	}

	if opts.Name == "" {
		return sourceSetOptions{}, errors.New("--name is required")
	}
	if opts.Enable && opts.Disable {
		return sourceSetOptions{}, errors.New("--enable and --disable are mutually exclusive")
	}
	if !opts.Enable && !opts.Disable && opts.Priority < 0 {
		return sourceSetOptions{}, errors.New("nothing to update; pass --enable, --disable, or --priority")
	}

	return opts, nil
}
