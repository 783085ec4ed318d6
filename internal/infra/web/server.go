package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"video-pipeline/internal/domain/ports/adapter"
	"video-pipeline/internal/infra/api"
	"video-pipeline/internal/infra/worker"
)

// Defaults fill fields a generate request leaves empty.
type Defaults struct {
	Model       string
	Duration    string
	AspectRatio string
	Mode        string
}

type Options struct {
	Addr           string
	Generator      adapter.VideoGenerator
	Pool           adapter.CredentialPool
	Workers        *worker.Pool
	Presets        *Presets
	Defaults       Defaults
	DownloadDir    string
	APIKey         string
	RequestTimeout time.Duration
	Now            func() time.Time
	Logger         *zerolog.Logger
}

// Explorer is the camera explorer HTTP proxy: single shots with hand-picked
// camera and lighting settings, outside of any pipeline run.
type Explorer struct {
	gen      adapter.VideoGenerator
	pool     adapter.CredentialPool
	workers  *worker.Pool
	presets  *Presets
	defaults Defaults
	dlDir    string
	apiKey   string
	timeout  time.Duration
	now      func() time.Time
	log      *zerolog.Logger
	tasks    *taskRegistry

	srv *http.Server
}

func NewExplorer(opt Options) *Explorer {
	if opt.Logger == nil {
		l := zerolog.Nop()
		opt.Logger = &l
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = 60 * time.Second
	}
	if opt.Presets == nil {
		opt.Presets = &Presets{Camera: []CameraPreset{}, Lighting: []LightingPreset{}}
	}
	if opt.Defaults.Duration == "" {
		opt.Defaults.Duration = "5"
	}
	if opt.Defaults.AspectRatio == "" {
		opt.Defaults.AspectRatio = "16:9"
	}
	if opt.Defaults.Mode == "" {
		opt.Defaults.Mode = "std"
	}
	e := &Explorer{
		gen:      opt.Generator,
		pool:     opt.Pool,
		workers:  opt.Workers,
		presets:  opt.Presets,
		defaults: opt.Defaults,
		dlDir:    opt.DownloadDir,
		apiKey:   opt.APIKey,
		timeout:  opt.RequestTimeout,
		now:      opt.Now,
		log:      opt.Logger,
		tasks:    newTaskRegistry(),
	}
	e.srv = &http.Server{
		Addr:              opt.Addr,
		Handler:           e.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return e
}

func (e *Explorer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		api.TraceID(),
		api.Recover(e.log),
		api.RequestLog(e.log),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		e.json(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(e.requireAPIKey, api.Timeout(e.timeout))
		r.Get("/presets", e.Presets)
		r.Post("/generate", e.Generate)
		// task ids may be provider operation names containing slashes
		r.Get("/status/*", e.Status)
		r.Post("/download/*", e.Download)
	})
	return r
}

// Start blocks serving until Shutdown. http.ErrServerClosed is not an error.
func (e *Explorer) Start() error {
	e.log.Info().Str("addr", e.srv.Addr).Msg("explorer listening")
	if err := e.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (e *Explorer) Shutdown(ctx context.Context) error {
	return e.srv.Shutdown(ctx)
}

// Sweep forgets tasks submitted before cutoff. Files already downloaded
// stay on disk.
func (e *Explorer) Sweep(_ context.Context, before time.Time) (int, error) {
	return e.tasks.evictBefore(before), nil
}

func (e *Explorer) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (e *Explorer) error(w http.ResponseWriter, code int, kind, msg string) {
	e.json(w, code, map[string]string{"error": kind, "message": msg})
}
