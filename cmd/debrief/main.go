package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/debrief/internal/aggregate"
	"github.com/MikeSquared-Agency/debrief/internal/config"
)

const version = "1.0.0"

var (
	logLevel       string
	aggregatorPath string
	globFlag       string
	cacheDirFlag   string
	baselineFlag   string
	workersFlag    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "debrief",
		Short: "Aggregate combat debrief recordings into one mission timeline",
		Long: `debrief reconciles the debriefing recordings of every participant in a
multiplayer mission: it aligns their clocks against a baseline recording,
collapses events logged by several participants and links hits to the kills
they caused.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&aggregatorPath, "config", "", "Aggregator tuning file (.yaml, .toml, .json); defaults to DEBRIEF_AGGREGATOR_CONFIG")
	rootCmd.PersistentFlags().StringVar(&globFlag, "glob", "", "Recordings to aggregate; defaults to DEBRIEFINGS_PATH")
	rootCmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "Cache output directory; defaults to DEBRIEF_CACHE_DIR")
	rootCmd.PersistentFlags().StringVar(&baselineFlag, "baseline", "", "Baseline recording by file name or source id")
	rootCmd.PersistentFlags().IntVar(&workersFlag, "workers", 0, "Ingestion workers; defaults to DEBRIEF_INGEST_WORKERS")

	rootCmd.AddCommand(newAggregateCmd(), newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment, then applies command-line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, aggregate.Options, error) {
	cfg := config.Load()
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("config") {
		cfg.AggregatorConfig = aggregatorPath
	}
	if flags.Changed("glob") {
		cfg.DebriefingsPath = globFlag
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = cacheDirFlag
	}
	if flags.Changed("workers") {
		cfg.IngestWorkers = workersFlag
	}
	setupLogging(cfg.LogLevel)

	opts, err := config.LoadAggregator(cfg.AggregatorConfig)
	if err != nil {
		return cfg, opts, fmt.Errorf("load aggregator config: %w", err)
	}
	if flags.Changed("baseline") {
		opts.Baseline = baselineFlag
	}
	return cfg, opts, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
