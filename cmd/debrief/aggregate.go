package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
	"github.com/MikeSquared-Agency/debrief/internal/runner"
	"github.com/MikeSquared-Agency/debrief/internal/telemetry"
)

func newAggregateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Run one aggregation and write the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, opts, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			c := connect(ctx, cfg)
			defer c.Close()
			c.deps.Observer = telemetry.NewExporter()

			r := runner.New(runner.Config{
				Glob:     cfg.DebriefingsPath,
				CacheDir: cfg.CacheDir,
				Workers:  cfg.IngestWorkers,
				Options:  opts,
			}, c.deps, slog.Default())

			report, err := r.Run(ctx)
			if errors.Is(err, runner.ErrNoRecordings) {
				fmt.Fprintf(cmd.ErrOrStderr(), "No recordings found in: %s\n", cfg.DebriefingsPath)
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report.Mission)
			}
			fmt.Fprint(out, mission.FormatSummary(report.Mission))
			for _, d := range report.Diagnostics() {
				fmt.Fprintln(out, d)
			}
			for _, w := range report.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the aggregated mission as JSON")
	return cmd
}
