package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video-pipeline/internal/app"
	"video-pipeline/internal/config"
	"video-pipeline/internal/infra/logging"
	"video-pipeline/internal/infra/metrics"
	"video-pipeline/internal/infra/sched"
	"video-pipeline/internal/infra/web"
	"video-pipeline/internal/infra/worker"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "configs/config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (offline providers by default)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] enabled")
	}

	// ---- App ----
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("app init failed")
	}
	defer a.Close()
	pool, err := a.PoolFor(cfg.Generation.Provider)
	if err != nil {
		logger.Fatal().Err(err).Msg("credential pool")
	}

	// ---- Presets ----
	presets, err := web.LoadPresets(cfg.Explorer.PresetsPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Explorer.PresetsPath).Msg("presets unavailable; serving empty lists")
		presets = nil
	}

	// ---- Download workers ----
	workers := worker.NewPool(cfg.Explorer.Workers, logger)
	workers.Start(ctx)

	// ---- HTTP ----
	exp := web.NewExplorer(web.Options{
		Addr:      cfg.Explorer.Addr,
		Generator: a.Video,
		Pool:      pool,
		Workers:   workers,
		Presets:   presets,
		Defaults: web.Defaults{
			Model:       a.VideoModel(),
			Duration:    cfg.Generation.Duration,
			AspectRatio: cfg.Generation.AspectRatio,
			Mode:        cfg.Generation.Mode,
		},
		DownloadDir:    cfg.Explorer.DownloadDir,
		APIKey:         cfg.Explorer.APIKey,
		RequestTimeout: cfg.Explorer.RequestTimeout,
		Logger:         logger,
	})

	// ---- Task sweeper (hourly) ----
	sweeper := sched.NewSweepWorker(time.Hour, cfg.Explorer.TaskTTL, exp, logger)
	go func() { _ = sweeper.Run(ctx) }()

	go func() {
		if err := exp.Start(); err != nil {
			logger.Error().Err(err).Msg("explorer server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := exp.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	workers.Stop()
	cancel()
}
