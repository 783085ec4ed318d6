// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"video-pipeline/internal/infra/security"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type KlingCredential struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type KlingConfig struct {
	AccessKey   string            `yaml:"access_key"`
	SecretKey   string            `yaml:"secret_key"`
	Credentials []KlingCredential `yaml:"credentials"` // extra keys for the pool
	BaseURL     string            `yaml:"base_url"`
	Model       string            `yaml:"model"`
	HTTPTimeout time.Duration     `yaml:"http_timeout"`
	TokenTTL    time.Duration     `yaml:"token_ttl"`
}

type GoogleConfig struct {
	APIKeys    []string `yaml:"api_keys"`
	BaseURL    string   `yaml:"base_url"`
	VideoModel string   `yaml:"video_model"`
	TextModel  string   `yaml:"text_model"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // OpenAI-compatible gateways (e.g. Metis)
	Model   string `yaml:"model"`
}

type LLMConfig struct {
	Provider        string  `yaml:"provider"` // gemini|openai|noop
	ConcurrentLimit int     `yaml:"concurrent_limit"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

type PoolConfig struct {
	DailyQuota  int    `yaml:"daily_quota"`
	MaxFailures int    `yaml:"max_failures"`
	Strategy    string `yaml:"strategy"` // round_robin|least_used
}

type GenerationConfig struct {
	Provider       string        `yaml:"provider"` // kling|veo|noop
	PollInterval   time.Duration `yaml:"poll_interval"`
	Timeout        time.Duration `yaml:"timeout"`
	Duration       string        `yaml:"duration"`
	AspectRatio    string        `yaml:"aspect_ratio"`
	Mode           string        `yaml:"mode"`
	SubmitAttempts int           `yaml:"submit_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
}

type PipelineConfig struct {
	OutputDir         string        `yaml:"output_dir"`
	CheckpointBackend string        `yaml:"checkpoint_backend"` // file|postgres
	StageDelay        time.Duration `yaml:"stage_delay"`
	MaxShots          int           `yaml:"max_shots"`
	StyleKeywords     []string      `yaml:"style_keywords"`
	NegativePrompts   []string      `yaml:"negative_prompts"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type ExplorerConfig struct {
	Addr           string        `yaml:"addr"`
	PresetsPath    string        `yaml:"presets_path"`
	Workers        int           `yaml:"workers"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DownloadDir    string        `yaml:"download_dir"`
	APIKey         string        `yaml:"api_key"` // optional bearer token for /api routes
	TaskTTL        time.Duration `yaml:"task_ttl"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Kling      KlingConfig      `yaml:"kling"`
	Google     GoogleConfig     `yaml:"google"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	LLM        LLMConfig        `yaml:"llm"`
	Pool       PoolConfig       `yaml:"pool"`
	Generation GenerationConfig `yaml:"generation"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Explorer   ExplorerConfig   `yaml:"explorer"`
	Security   SecurityConfig   `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads .env (if present), the YAML file at path, then applies
// environment overrides, defaults and validation. An empty path means
// environment-only configuration.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.Runtime.Dev = dev

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := decryptSecrets(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setIfEnv(&cfg.Kling.AccessKey, "KLING_ACCESS_KEY")
	setIfEnv(&cfg.Kling.SecretKey, "KLING_SECRET_KEY")
	setIfEnv(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setIfEnv(&cfg.Database.URL, "DATABASE_URL")
	setIfEnv(&cfg.Redis.URL, "REDIS_ADDR")
	setIfEnv(&cfg.Security.EncryptionKey, "PIPELINE_MASTER_KEY")
	setIfEnv(&cfg.Storage.S3.Bucket, "PIPELINE_S3_BUCKET")
	setIfEnv(&cfg.Explorer.APIKey, "EXPLORER_API_KEY")

	// GOOGLE_API_KEYS is comma separated; GOOGLE_API_KEY adds a single key.
	if v := strings.TrimSpace(os.Getenv("GOOGLE_API_KEYS")); v != "" {
		cfg.Google.APIKeys = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); v != "" && !contains(cfg.Google.APIKeys, v) {
		cfg.Google.APIKeys = append(cfg.Google.APIKeys, v)
	}
	if v := os.Getenv("PIPELINE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v, err := strconv.ParseBool(os.Getenv("REDIS_ENABLED")); err == nil {
		cfg.Redis.Enabled = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Kling.BaseURL == "" {
		cfg.Kling.BaseURL = "https://api.klingai.com"
	}
	if cfg.Kling.Model == "" {
		cfg.Kling.Model = "kling-v2-master"
	}
	if cfg.Kling.HTTPTimeout <= 0 {
		cfg.Kling.HTTPTimeout = 60 * time.Second
	}
	if cfg.Kling.TokenTTL <= 0 {
		cfg.Kling.TokenTTL = 30 * time.Minute
	}

	if cfg.Google.VideoModel == "" {
		cfg.Google.VideoModel = "veo-3.0-generate-001"
	}
	if cfg.Google.TextModel == "" {
		cfg.Google.TextModel = "gemini-2.0-flash-lite"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	if cfg.LLM.ConcurrentLimit <= 0 {
		cfg.LLM.ConcurrentLimit = 4
	}
	if cfg.LLM.MaxOutputTokens <= 0 {
		cfg.LLM.MaxOutputTokens = 8192
	}
	if cfg.LLM.Temperature <= 0 {
		cfg.LLM.Temperature = 0.7
	}

	if cfg.Pool.DailyQuota <= 0 {
		cfg.Pool.DailyQuota = 1500
	}
	if cfg.Pool.MaxFailures <= 0 {
		cfg.Pool.MaxFailures = 3
	}
	if cfg.Pool.Strategy == "" {
		cfg.Pool.Strategy = "round_robin"
	}

	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "kling"
		if cfg.Runtime.Dev {
			cfg.Generation.Provider = "noop"
		}
	}
	if cfg.Generation.PollInterval <= 0 {
		cfg.Generation.PollInterval = 5 * time.Second
	}
	if cfg.Generation.Timeout <= 0 {
		cfg.Generation.Timeout = 300 * time.Second
	}
	if cfg.Generation.Duration == "" {
		cfg.Generation.Duration = "5"
		if cfg.Generation.Provider == "veo" {
			cfg.Generation.Duration = "8"
		}
	}
	if cfg.Generation.AspectRatio == "" {
		cfg.Generation.AspectRatio = "16:9"
	}
	if cfg.Generation.Mode == "" {
		cfg.Generation.Mode = "std"
	}
	if cfg.Generation.SubmitAttempts <= 0 {
		cfg.Generation.SubmitAttempts = 3
	}
	if cfg.Generation.RetryBackoff <= 0 {
		cfg.Generation.RetryBackoff = 2 * time.Second
	}

	if cfg.Pipeline.OutputDir == "" {
		cfg.Pipeline.OutputDir = "output"
	}
	if cfg.Pipeline.CheckpointBackend == "" {
		cfg.Pipeline.CheckpointBackend = "file"
	}
	if cfg.Pipeline.MaxShots <= 0 {
		cfg.Pipeline.MaxShots = 1
	}
	if len(cfg.Pipeline.StyleKeywords) == 0 {
		cfg.Pipeline.StyleKeywords = []string{"Cinematic", "24fps film look", "natural lighting"}
	}
	if len(cfg.Pipeline.NegativePrompts) == 0 {
		cfg.Pipeline.NegativePrompts = []string{"CGI", "cartoon", "anime", "deformed", "text", "subtitles", "watermark"}
	}

	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 4
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 2 * time.Hour
	}

	if cfg.Explorer.Addr == "" {
		cfg.Explorer.Addr = ":8000"
	}
	if cfg.Explorer.PresetsPath == "" {
		cfg.Explorer.PresetsPath = "configs/presets.yaml"
	}
	if cfg.Explorer.Workers <= 0 {
		cfg.Explorer.Workers = 2
	}
	if cfg.Explorer.RequestTimeout <= 0 {
		cfg.Explorer.RequestTimeout = 90 * time.Second
	}
	if cfg.Explorer.DownloadDir == "" {
		cfg.Explorer.DownloadDir = "output/explorer"
	}
	if cfg.Explorer.TaskTTL <= 0 {
		cfg.Explorer.TaskTTL = 24 * time.Hour
	}
}

// decryptSecrets replaces every "enc:" value with its plaintext.
func decryptSecrets(cfg *Config) error {
	secrets := []*string{
		&cfg.Kling.AccessKey,
		&cfg.Kling.SecretKey,
		&cfg.OpenAI.APIKey,
		&cfg.Database.URL,
		&cfg.Redis.Password,
		&cfg.Explorer.APIKey,
	}
	for i := range cfg.Kling.Credentials {
		secrets = append(secrets, &cfg.Kling.Credentials[i].AccessKey, &cfg.Kling.Credentials[i].SecretKey)
	}
	for i := range cfg.Google.APIKeys {
		secrets = append(secrets, &cfg.Google.APIKeys[i])
	}

	var enc *security.EncryptionService
	for _, s := range secrets {
		if !security.IsSealed(*s) {
			continue
		}
		if enc == nil {
			if cfg.Security.EncryptionKey == "" {
				return errors.New("encrypted secret found but security.encryption_key is empty")
			}
			var err error
			enc, err = security.NewEncryptionService(cfg.Security.EncryptionKey)
			if err != nil {
				return fmt.Errorf("encryption: %w", err)
			}
		}
		pt, err := enc.Open(*s)
		if err != nil {
			return fmt.Errorf("decrypt secret: %w", err)
		}
		*s = pt
	}
	return nil
}

// Validate checks the combination of providers and credentials.
func (c *Config) Validate() error {
	switch c.Generation.Provider {
	case "kling":
		if len(c.KlingCredentials()) == 0 {
			return errors.New("kling: at least one access_key/secret_key pair is required")
		}
	case "veo":
		if len(c.Google.APIKeys) == 0 {
			return errors.New("google.api_keys is required for the veo provider")
		}
	case "noop":
	default:
		return fmt.Errorf("generation.provider %q is not supported", c.Generation.Provider)
	}

	switch c.LLM.Provider {
	case "gemini":
		if len(c.Google.APIKeys) == 0 && !c.Runtime.Dev {
			return errors.New("google.api_keys is required for the gemini llm provider")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return errors.New("openai.api_key is required for the openai llm provider")
		}
	case "noop":
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}

	switch c.Pool.Strategy {
	case "round_robin", "least_used":
	default:
		return fmt.Errorf("pool.strategy %q is not supported", c.Pool.Strategy)
	}

	switch c.Pipeline.CheckpointBackend {
	case "file":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres checkpoint backend")
		}
	default:
		return fmt.Errorf("pipeline.checkpoint_backend %q is not supported", c.Pipeline.CheckpointBackend)
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return errors.New("redis.url is required when redis is enabled")
	}
	if c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		return errors.New("storage.s3.bucket is required when s3 mirroring is enabled")
	}
	return nil
}

// KlingCredentials merges the single key pair and the credentials list,
// skipping incomplete or duplicate entries.
func (c *Config) KlingCredentials() []KlingCredential {
	var out []KlingCredential
	seen := map[string]struct{}{}
	add := func(k KlingCredential) {
		if k.AccessKey == "" || k.SecretKey == "" {
			return
		}
		if _, ok := seen[k.AccessKey]; ok {
			return
		}
		seen[k.AccessKey] = struct{}{}
		out = append(out, k)
	}
	add(KlingCredential{AccessKey: c.Kling.AccessKey, SecretKey: c.Kling.SecretKey})
	for _, k := range c.Kling.Credentials {
		add(k)
	}
	return out
}

func setIfEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
