package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
)

type settingSetOptions struct {
	Key   string
	Value string
}

func runListSettings(cmdCtx *commandContext, _ []string) error {
	return withDatabase(cmdCtx, 2*time.Minute, func(ctx context.Context, db *sql.DB) error {
		settings, err := data.NewSettingRepo(db).List(ctx)
		if err != nil {
			return err
		}
		return printSettingTable(os.Stdout, settings)
	})
}

func runSetSetting(cmdCtx *commandContext, args []string) error {
	opts, err := parseSettingSetFlags(args)
	if err != nil {
		return err
	}

	if validateErr := model.ValidateSettingKey(opts.Key); validateErr != nil {
		return validateErr
	}

	return withDatabase(cmdCtx, 2*time.Minute, func(ctx context.Context, db *sql.DB) error {
		setting, setErr := data.NewSettingRepo(db).Set(ctx, opts.Key, opts.Value)
		if setErr != nil {
			return setErr
		}
		cmdCtx.Logger.Info("setting updated", "key", setting.Key, "value", setting.Value)
		return nil
	})
}

func printSettingTable(w io.Writer, settings []*model.Setting) error {
	if len(settings) == 0 {
		return writeln(w, "(no settings stored; defaults apply)")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "KEY\tVALUE\tUPDATED"); err != nil {
		return err
	}
	for _, s := range settings {
		if err := writef(
			tw,
			"%s\t%s\t%s\n",
			s.Key,
			s.Value,
			s.UpdatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func parseSettingSetFlags(args []string) (settingSetOptions, error) {
	fs := flag.NewFlagSet("setting-set", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := settingSetOptions{}
	fs.StringVar(&opts.Key, "key", "", "Setting key (job_limit, look_back_days, run_frequency)")
	fs.StringVar(&opts.Value, "value", "", "Setting value")

	if err := fs.Parse(args); err != nil {
		return settingSetOptions{}, err
	}

	if opts.Key == "" {
		return settingSetOptions{}, errors.New("--key is required")
	}
	if opts.Value == "" {
		return settingSetOptions{}, fmt.Errorf("--value is required for key %q", opts.Key)
	}

	return opts, nil
}
