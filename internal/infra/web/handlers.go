package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/infra/logging"
	"video-pipeline/internal/infra/metrics"
	"video-pipeline/internal/infra/worker"
)

type generateRequest struct {
	Prompt         string               `json:"prompt"`
	NegativePrompt string               `json:"negative_prompt"`
	Camera         *model.CameraControl `json:"camera"`
	LightingPrompt string               `json:"lighting_prompt"`
	Duration       string               `json:"duration"`
	AspectRatio    string               `json:"aspect_ratio"`
	Mode           string               `json:"mode"`
	Model          string               `json:"model"`
}

type taskResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
	Download string `json:"download,omitempty"`
	Path     string `json:"path,omitempty"`
}

func (e *Explorer) Presets(w http.ResponseWriter, _ *http.Request) {
	e.json(w, http.StatusOK, e.presets)
}

func (e *Explorer) Generate(w http.ResponseWriter, r *http.Request) {
	var in generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		e.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req := e.buildRequest(in)
	if err := req.Validate(); err != nil {
		e.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	ctx := r.Context()
	log := logging.With(ctx, e.log)
	cred, err := e.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPoolExhausted) {
			e.error(w, http.StatusServiceUnavailable, "pool_exhausted", "no credential has quota left")
			return
		}
		e.error(w, http.StatusInternalServerError, "internal", "failed to acquire credential")
		return
	}

	job, err := e.gen.Submit(ctx, cred, req)
	if err != nil {
		e.settle(ctx, cred, err)
		metrics.IncGenerationJob(e.gen.Name(), "submit")
		log.Warn().Err(err).Str("credential", cred.ID).Msg("explorer submit failed")
		code, kind := statusFor(err)
		e.error(w, code, kind, domain.ProviderMessage(err))
		return
	}
	if job.Status == model.JobStatusFailed {
		e.pool.ReportFailure(ctx, cred)
		metrics.IncGenerationJob(e.gen.Name(), "failed")
		e.error(w, http.StatusBadGateway, "generation_failed", job.ErrorMessage)
		return
	}
	e.pool.ReportSuccess(ctx, cred)
	e.tasks.put(cred, *job, e.now())
	log.Info().Str("task_id", job.ID).Str("credential", cred.ID).Msg("explorer task submitted")
	e.json(w, http.StatusOK, taskResponse{TaskID: job.ID, Status: string(job.Status)})
}

func (e *Explorer) buildRequest(in generateRequest) model.GenerationRequest {
	prompt := strings.TrimSpace(in.Prompt)
	if l := strings.TrimSpace(in.LightingPrompt); l != "" && prompt != "" {
		prompt = prompt + ". " + l
	}
	req := model.GenerationRequest{
		Model:          firstNonEmpty(in.Model, e.defaults.Model),
		Prompt:         prompt,
		NegativePrompt: in.NegativePrompt,
		Camera:         in.Camera.Movement(),
		Duration:       firstNonEmpty(in.Duration, e.defaults.Duration),
		AspectRatio:    firstNonEmpty(in.AspectRatio, e.defaults.AspectRatio),
		Mode:           firstNonEmpty(in.Mode, e.defaults.Mode),
	}
	return req
}

func (e *Explorer) Status(w http.ResponseWriter, r *http.Request) {
	id := taskIDParam(r)
	t, ok := e.tasks.get(id)
	if !ok {
		e.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	if !t.Job.IsTerminal() {
		job, err := e.gen.Poll(r.Context(), t.Cred, id)
		if err != nil {
			code, kind := statusFor(err)
			e.error(w, code, kind, domain.ProviderMessage(err))
			return
		}
		e.tasks.update(id, func(t *task) { t.Job = *job })
		t.Job = *job
	}
	e.json(w, http.StatusOK, responseFor(t))
}

func (e *Explorer) Download(w http.ResponseWriter, r *http.Request) {
	id := taskIDParam(r)
	t, ok := e.tasks.get(id)
	if !ok {
		e.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	if t.Job.Status != model.JobStatusSucceeded || t.Job.ResultURI == "" {
		e.error(w, http.StatusConflict, "not_ready", "task has no finished video yet")
		return
	}
	if _, ok := e.tasks.claimDownload(id); !ok {
		e.json(w, http.StatusAccepted, taskResponse{TaskID: id, Status: string(t.Job.Status), Download: downloadQueued})
		return
	}

	dest := filepath.Join(e.dlDir, safeName(id)+".mp4")
	err := e.workers.Submit(func(ctx context.Context) error {
		return e.fetch(ctx, t, dest)
	})
	if err != nil {
		e.tasks.update(id, func(t *task) { t.Download = downloadNone })
		if errors.Is(err, worker.ErrQueueFull) {
			e.error(w, http.StatusServiceUnavailable, "busy", "download queue is full")
			return
		}
		e.error(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	e.json(w, http.StatusAccepted, taskResponse{TaskID: id, Status: string(t.Job.Status), Download: downloadQueued})
}

func (e *Explorer) fetch(ctx context.Context, t task, dest string) error {
	e.tasks.update(t.ID, func(t *task) { t.Download = downloadRunning })
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		e.tasks.update(t.ID, func(t *task) { t.Download, t.DownloadErr = downloadFailed, err.Error() })
		return err
	}
	path, err := e.gen.FetchArtifact(ctx, t.Cred, t.Job.ResultURI, dest)
	if err != nil {
		e.tasks.update(t.ID, func(t *task) { t.Download, t.DownloadErr = downloadFailed, err.Error() })
		return fmt.Errorf("download %s: %w", t.ID, err)
	}
	now := e.now()
	e.tasks.update(t.ID, func(t *task) {
		t.Download, t.LocalPath, t.DownloadedAt = downloadDone, path, now
	})
	e.log.Info().Str("task_id", t.ID).Str("path", path).Msg("explorer video downloaded")
	return nil
}

// settle returns the reservation after a failed submit. Only errors that
// point at the credential or the provider count against it.
func (e *Explorer) settle(ctx context.Context, cred model.Credential, err error) {
	if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrProvider) {
		e.pool.ReportFailure(ctx, cred)
		return
	}
	e.pool.Release(ctx, cred)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, domain.ErrAuth):
		return http.StatusBadGateway, "provider_auth"
	default:
		return http.StatusBadGateway, "provider_error"
	}
}

func responseFor(t task) taskResponse {
	return taskResponse{
		TaskID:   t.ID,
		Status:   string(t.Job.Status),
		VideoURL: t.Job.ResultURI,
		Error:    firstNonEmpty(t.Job.ErrorMessage, t.DownloadErr),
		Download: t.Download,
		Path:     t.LocalPath,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// safeName keeps provider job ids (Veo uses resource paths) usable as file names.
// taskIDParam reads the task id from the wildcard tail of the route.
func taskIDParam(r *http.Request) string {
	return strings.Trim(chi.URLParam(r, "*"), "/")
}

func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, id)
}
