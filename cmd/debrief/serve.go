package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/debrief/internal/api"
	"github.com/MikeSquared-Agency/debrief/internal/runner"
	"github.com/MikeSquared-Agency/debrief/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest aggregated mission over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, opts, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			slog.Info("debrief starting", "port", cfg.Port, "glob", cfg.DebriefingsPath)

			c := connect(ctx, cfg)
			defer c.Close()
			exporter := telemetry.NewExporter()
			c.deps.Observer = exporter

			r := runner.New(runner.Config{
				Glob:     cfg.DebriefingsPath,
				CacheDir: cfg.CacheDir,
				Workers:  cfg.IngestWorkers,
				Options:  opts,
			}, c.deps, slog.Default())

			if _, err := r.Warm(ctx); err != nil && !errors.Is(err, runner.ErrNoRecordings) {
				slog.Error("initial aggregation failed", "error", err)
			}

			if c.hermes != nil {
				if err := c.hermes.SubscribeRecordingStored(r.HandleRecordingStored); err != nil {
					slog.Warn("failed to subscribe to recording events", "error", err)
				}
			}

			if watch {
				go func() {
					if err := r.Watch(ctx, runner.DefaultDebounce); err != nil {
						slog.Error("watcher stopped", "error", err)
					}
				}()
			}

			var history api.History
			if c.db != nil {
				history = c.db
			}
			srv := api.NewServer(cfg.Port, cfg.APIToken, r, history, exporter.Handler())
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("HTTP server error", "error", err)
					os.Exit(1)
				}
			}()

			slog.Info("debrief ready", "port", cfg.Port, "watch", watch)

			<-ctx.Done()
			slog.Info("shutting down")
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("HTTP shutdown", "error", err)
			}
			slog.Info("debrief stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port; defaults to DEBRIEF_PORT")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-aggregate when recordings change")
	return cmd
}
