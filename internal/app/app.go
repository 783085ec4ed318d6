package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/config"
	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/ports/adapter"
	"video-pipeline/internal/domain/ports/repository"
	aiAdapters "video-pipeline/internal/infra/adapters/ai"
	"video-pipeline/internal/infra/adapters/storage"
	"video-pipeline/internal/infra/adapters/video"
	"video-pipeline/internal/infra/checkpoint"
	pg "video-pipeline/internal/infra/db/postgres"
	"video-pipeline/internal/infra/keypool"
	red "video-pipeline/internal/infra/redis"
	"video-pipeline/internal/usecase"
)

// Credential pool names. The Google pool is shared by Veo and Gemini since
// both spend the same API keys.
const (
	PoolKling  = "kling"
	PoolGoogle = "google"
	PoolNoop   = "noop"
)

// App is the composition root shared by the CLI and the explorer. Build it
// once per process and Close it on exit.
type App struct {
	Cfg *config.Config
	Log *zerolog.Logger

	Pools    map[string]*keypool.Pool
	Video    *video.MultiAdapter
	AI       adapter.AIServiceAdapter
	Store    repository.CheckpointStore
	Sink     adapter.ArtifactSink
	Locker   repository.RunLocker
	Pipeline usecase.PipelineUseCase

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: logger, Pools: map[string]*keypool.Pool{}}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// ---- Redis ----
	var redisClient *red.Client
	if cfg.Redis.Enabled {
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		redisClient = c
		a.closers = append(a.closers, func() { _ = c.Close() })
		a.Locker = red.NewLocker(c)
		logger.Info().Str("addr", cfg.Redis.URL).Msg("redis enabled for usage counters and run locks")
	}

	// ---- Credential pools ----
	strategy := cfg.Pool.Strategy
	newPool := func(name string, specs []keypool.KeySpec) error {
		if len(specs) == 0 {
			return nil
		}
		st, err := keypool.StrategyByName(strategy)
		if err != nil {
			return err
		}
		opt := keypool.Options{
			Name:        name,
			DailyQuota:  cfg.Pool.DailyQuota,
			MaxFailures: cfg.Pool.MaxFailures,
			Strategy:    st,
			Logger:      logger,
		}
		if redisClient != nil {
			opt.Usage = red.NewUsageStore(redisClient, name)
		}
		p, err := keypool.New(ctx, specs, opt)
		if err != nil {
			return fmt.Errorf("%s pool: %w", name, err)
		}
		a.Pools[name] = p
		logger.Info().Str("pool", name).Int("credentials", p.Size()).Str("strategy", strategy).Msg("credential pool ready")
		return nil
	}

	var klingKeys []keypool.KeySpec
	for _, k := range cfg.KlingCredentials() {
		klingKeys = append(klingKeys, keypool.KeySpec{ID: k.AccessKey, KeyMaterial: k.SecretKey})
	}
	var googleKeys []keypool.KeySpec
	for i, k := range cfg.Google.APIKeys {
		googleKeys = append(googleKeys, keypool.KeySpec{ID: fmt.Sprintf("google-%d", i+1), KeyMaterial: k})
	}
	for name, specs := range map[string][]keypool.KeySpec{
		PoolKling:  klingKeys,
		PoolGoogle: googleKeys,
		PoolNoop:   {{ID: "noop-1", KeyMaterial: "noop"}},
	} {
		if err := newPool(name, specs); err != nil {
			return nil, err
		}
	}

	// ---- Video providers ----
	gens := []adapter.VideoGenerator{
		video.NewNoopVideoAdapter(filepath.Join(cfg.Pipeline.OutputDir, ".noop"), 2),
	}
	if a.Pools[PoolKling] != nil {
		gens = append(gens, video.NewKlingAdapter(video.KlingOptions{
			BaseURL:        cfg.Kling.BaseURL,
			Model:          cfg.Kling.Model,
			HTTPClient:     &http.Client{Timeout: cfg.Kling.HTTPTimeout},
			TokenTTL:       cfg.Kling.TokenTTL,
			SubmitAttempts: cfg.Generation.SubmitAttempts,
			RetryBackoff:   cfg.Generation.RetryBackoff,
			Logger:         logger,
		}))
	}
	if a.Pools[PoolGoogle] != nil {
		gens = append(gens, video.NewVeoAdapter(video.VeoOptions{
			BaseURL:        cfg.Google.BaseURL,
			Model:          cfg.Google.VideoModel,
			SubmitAttempts: cfg.Generation.SubmitAttempts,
			RetryBackoff:   cfg.Generation.RetryBackoff,
			Logger:         logger,
		}))
	}
	a.Video = video.NewMultiAdapter(cfg.Generation.Provider, gens...)

	// ---- LLM ----
	ai, err := a.buildAI()
	if err != nil {
		return nil, err
	}
	a.AI = ai

	// ---- Checkpoints ----
	switch cfg.Pipeline.CheckpointBackend {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.Store = pg.NewPostgresCheckpointRepo(pool, pg.NewTxManager(pool), logger)
	default:
		a.Store = checkpoint.NewFileStore(cfg.Pipeline.OutputDir, logger)
	}

	// ---- Artifact mirror ----
	if cfg.Storage.S3.Enabled {
		sink, err := storage.NewS3Sink(ctx, cfg.Storage.S3, logger)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		a.Sink = sink
	}

	// ---- Use cases ----
	pool, err := a.PoolFor(cfg.Generation.Provider)
	if err != nil {
		return nil, err
	}
	llmOpt := usecase.LLMOptions{
		Model:       a.TextModel(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxOutputTokens,
	}
	videos := usecase.NewVideoUseCase(pool, a.Video, video.AwaitCompletion, a.Sink, usecase.VideoOptions{
		Model:        a.VideoModel(),
		Duration:     cfg.Generation.Duration,
		AspectRatio:  cfg.Generation.AspectRatio,
		Mode:         cfg.Generation.Mode,
		PollInterval: cfg.Generation.PollInterval,
		Timeout:      cfg.Generation.Timeout,
		OutputDir:    cfg.Pipeline.OutputDir,
	}, logger)
	a.Pipeline = usecase.NewPipelineUseCase(
		a.Store,
		usecase.NewSceneArchitect(a.AI, llmOpt, logger),
		usecase.NewShotComposer(a.AI, llmOpt, logger),
		usecase.NewPromptBuilder(cfg.Pipeline.StyleKeywords, cfg.Pipeline.NegativePrompts),
		videos,
		a.Locker,
		cfg.Redis.LockTTL,
		logger,
	)

	ok = true
	return a, nil
}

func (a *App) buildAI() (adapter.AIServiceAdapter, error) {
	cfg := a.Cfg
	byProvider := map[string]adapter.AIServiceAdapter{
		"noop": aiAdapters.NewNoopAIAdapter(a.Log),
	}
	if p := a.Pools[PoolGoogle]; p != nil {
		g, err := aiAdapters.NewGeminiAdapter(p, cfg.Google.BaseURL, cfg.Google.TextModel, cfg.LLM.MaxOutputTokens)
		if err != nil {
			return nil, err
		}
		byProvider["gemini"] = g
	}
	if cfg.OpenAI.APIKey != "" {
		o, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.LLM.MaxOutputTokens, &http.Client{Timeout: 120 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		byProvider["openai"] = o
	}

	provider := cfg.LLM.Provider
	if byProvider[provider] == nil {
		// dev mode may run gemini without keys
		a.Log.Warn().Str("llm_provider", provider).Msg("llm provider not configured; using offline replies")
		provider = "noop"
	}
	modelMap := map[string]string{
		cfg.Google.TextModel: "gemini",
		cfg.OpenAI.Model:     "openai",
	}
	multi := aiAdapters.NewMultiAIAdapter(provider, byProvider, modelMap)
	return aiAdapters.NewLimitedAI(multi, cfg.LLM.ConcurrentLimit), nil
}

// TextModel is the model the storyboard stages ask for.
func (a *App) TextModel() string {
	switch a.Cfg.LLM.Provider {
	case "openai":
		return a.Cfg.OpenAI.Model
	case "gemini":
		if a.Pools[PoolGoogle] != nil {
			return a.Cfg.Google.TextModel
		}
	}
	return "noop"
}

// VideoModel is the model requested from the configured generation provider.
func (a *App) VideoModel() string {
	switch a.Cfg.Generation.Provider {
	case "kling":
		return a.Cfg.Kling.Model
	case "veo":
		return a.Cfg.Google.VideoModel
	default:
		return "noop-video"
	}
}

// PoolFor maps a video provider to the credential pool it spends.
func (a *App) PoolFor(provider string) (*keypool.Pool, error) {
	name := provider
	if provider == "veo" || provider == "gemini" {
		name = PoolGoogle
	}
	p := a.Pools[name]
	if p == nil {
		return nil, fmt.Errorf("%w: no credentials configured for %q", domain.ErrInvalidArgument, provider)
	}
	return p, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
