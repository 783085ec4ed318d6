package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"video-pipeline/internal/app"
	"video-pipeline/internal/config"
	"video-pipeline/internal/infra/logging"
	"video-pipeline/internal/infra/metrics"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

// Global flags
var (
	configFlag string
	devFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Staged story-to-video pipeline with checkpoints and resumable stages",
	Long: `pipeline turns a story (lore file) into scenes, shots, prompts and finally
generated video clips. Every stage writes a checkpoint under the run directory,
so any stage can be re-run later from the checkpoints of the stages before it.

Examples:
  pipeline run --lore lore/ava.yaml --through stage-3
  pipeline resume --run-dir output/20260128_112302 --stage video --shots 1
  pipeline resume --run-dir output/20260128_112302 --stage all --delay 180s
  pipeline poll --job 8f1c2e --provider kling
  pipeline pool
  echo -n "$KLING_SECRET_KEY" | pipeline seal`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "configs/config.yaml", "path to YAML config file (empty: environment only)")
	rootCmd.PersistentFlags().BoolVar(&devFlag, "dev", false, "developer mode: console logs, offline providers by default")

	rootCmd.AddCommand(newRunCmd(), newResumeCmd(), newPollCmd(), newPoolCmd(), newSealCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the App. mutate may adjust the
// config (e.g. output dir from --run-dir) before anything is wired.
func bootstrap(ctx context.Context, mutate func(*config.Config)) (*app.App, *zerolog.Logger, error) {
	path := configFlag
	if path != "" {
		if _, err := os.Stat(path); err != nil && os.IsNotExist(err) && !rootCmd.PersistentFlags().Changed("config") {
			path = ""
		}
	}
	cfg, err := config.LoadConfig(path, devFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if mutate != nil {
		mutate(cfg)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] enabled")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, logger, err
	}
	return a, logger, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
