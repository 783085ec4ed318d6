package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
	"video-pipeline/internal/infra/logging"
	"video-pipeline/internal/infra/metrics"
)

// Compile-time check
var _ VideoUseCase = (*videoUC)(nil)

// VideoUseCase drives the video-generation stage for a batch of prompts.
type VideoUseCase interface {
	// Generate runs prompts one at a time and returns one result per prompt
	// attempted. Item failures are recorded in the results; the returned
	// error is non-nil only when the batch had to stop (pool exhausted or
	// ctx done), and the results gathered so far are still returned.
	Generate(ctx context.Context, runID string, prompts []model.Prompt, maxItems int) ([]model.VideoResult, error)
}

// AwaitFunc waits for a submitted job to reach a terminal state.
type AwaitFunc func(ctx context.Context, p adapter.JobPoller, cred model.Credential, jobID string, interval, timeout time.Duration, logger *zerolog.Logger) (*model.GenerationJob, error)

// VideoOptions carries the per-request provider settings.
type VideoOptions struct {
	Model        string
	Duration     string
	AspectRatio  string
	Mode         string
	PollInterval time.Duration
	Timeout      time.Duration
	OutputDir    string // videos land in <OutputDir>/<runID>/videos
}

type videoUC struct {
	pool  adapter.CredentialPool
	gen   adapter.VideoGenerator
	await AwaitFunc
	sink  adapter.ArtifactSink // optional
	opt   VideoOptions
	log   *zerolog.Logger
}

// NewVideoUseCase wires the pool and provider together. sink may be nil.
func NewVideoUseCase(
	pool adapter.CredentialPool,
	gen adapter.VideoGenerator,
	await AwaitFunc,
	sink adapter.ArtifactSink,
	opt VideoOptions,
	logger *zerolog.Logger,
) *videoUC {
	return &videoUC{pool: pool, gen: gen, await: await, sink: sink, opt: opt, log: orNop(logger)}
}

func (u *videoUC) Generate(ctx context.Context, runID string, prompts []model.Prompt, maxItems int) ([]model.VideoResult, error) {
	if maxItems > 0 && maxItems < len(prompts) {
		prompts = prompts[:maxItems]
	}
	dir := filepath.Join(u.opt.OutputDir, runID, "videos")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create video dir: %w", err)
	}

	log := logging.With(ctx, u.log)
	results := make([]model.VideoResult, 0, len(prompts))
	for i, p := range prompts {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := u.generateOne(logging.WithItem(ctx, p.ShotID), runID, p, dir)
		if err != nil {
			log.Error().Err(err).Str("shot_id", p.ShotID).Int("done", i).Int("total", len(prompts)).Msg("video batch stopped")
			return results, err
		}
		results = append(results, res)
	}
	log.Info().Int("total", len(results)).Int("failed", countFailed(results)).Msg("video batch finished")
	return results, nil
}

// generateOne handles one prompt. The returned error stops the batch; every
// other outcome is recorded in the result.
func (u *videoUC) generateOne(ctx context.Context, runID string, p model.Prompt, dir string) (model.VideoResult, error) {
	defer logging.TraceDuration(u.log, "VideoUC.generateOne")()
	log := logging.With(ctx, u.log)

	text := p.Build()
	res := model.VideoResult{
		ShotID:   p.ShotID,
		Provider: u.gen.Name(),
		Prompt:   model.PromptPreview(text),
	}
	if err := model.ValidateShotID(p.ShotID); err != nil {
		return u.failed(res, "invalid", err), nil
	}

	cred, err := u.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPoolExhausted) {
			return res, fmt.Errorf("video generation: %w", err)
		}
		return res, err
	}
	res.Credential = cred.ID

	req := model.GenerationRequest{
		Model:          u.opt.Model,
		Prompt:         text,
		NegativePrompt: p.Negative(),
		Camera:         p.Camera.Movement(),
		Duration:       u.opt.Duration,
		AspectRatio:    u.opt.AspectRatio,
		Mode:           u.opt.Mode,
	}
	if err := req.Validate(); err != nil {
		u.pool.Release(ctx, cred)
		return u.failed(res, "submit", err), nil
	}

	job, err := u.gen.Submit(ctx, cred, req)
	if err != nil {
		if ctx.Err() != nil {
			u.pool.Release(ctx, cred)
			return res, ctx.Err()
		}
		u.settle(ctx, cred, err)
		return u.failed(res, "submit", err), nil
	}
	res.JobID = job.ID
	if job.Provider != "" {
		res.Provider = job.Provider
	}
	log.Info().Str("job_id", job.ID).Str("credential", cred.ID).Msg("video job submitted")

	if !job.IsTerminal() {
		job, err = u.await(ctx, u.gen, cred, job.ID, u.opt.PollInterval, u.opt.Timeout, log)
		if err != nil {
			if ctx.Err() != nil {
				u.pool.Release(ctx, cred)
				log.Warn().Str("job_id", res.JobID).Msg("wait interrupted; job can be polled again by id")
				return res, ctx.Err()
			}
			u.settle(ctx, cred, err)
			return u.failed(res, "poll", err), nil
		}
	}

	switch {
	case job.IsTimedOut():
		// the remote job keeps running and may still bill the key
		u.pool.Release(ctx, cred)
		res.TimedOut = true
		log.Warn().Str("job_id", job.ID).Msg("generation timed out; re-poll later with the job id")
		return u.failed(res, "timeout", fmt.Errorf("%w: %s", domain.ErrTimeout, job.ErrorMessage)), nil
	case job.Status == model.JobStatusFailed:
		u.pool.ReportFailure(ctx, cred)
		return u.failed(res, "failed", domain.NewProviderFailure(domain.ErrProvider, res.Provider, 0, 0, job.ErrorMessage, nil)), nil
	}

	// The provider produced the video, so the use counts against the key
	// even if the download below fails.
	u.pool.ReportSuccess(ctx, cred)

	dest := filepath.Join(dir, p.ShotID+".mp4")
	path, err := u.gen.FetchArtifact(ctx, cred, job.ResultURI, dest)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return u.failed(res, "download", err), nil
	}
	res.Path = path
	res.Status = model.VideoSucceeded
	metrics.IncGenerationJob(res.Provider, "succeeded")

	if u.sink != nil {
		uri, err := u.sink.Put(ctx, runID, path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("artifact mirror failed")
		} else {
			res.MirrorURI = uri
		}
	}
	log.Info().Str("job_id", job.ID).Str("path", path).Msg("video saved")
	return res, nil
}

// settle reports a provider call that failed. Auth and provider errors are
// charged to the credential; anything else only returns the reservation.
func (u *videoUC) settle(ctx context.Context, cred model.Credential, err error) {
	if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrProvider) {
		u.pool.ReportFailure(ctx, cred)
		return
	}
	u.pool.Release(ctx, cred)
}

func (u *videoUC) failed(res model.VideoResult, outcome string, err error) model.VideoResult {
	res.Status = model.VideoFailed
	res.Error = domain.ProviderMessage(err)
	metrics.IncGenerationJob(res.Provider, outcome)
	u.log.Warn().Err(err).Str("shot_id", res.ShotID).Str("job_id", res.JobID).Str("outcome", outcome).Msg("video item failed")
	return res
}

func countFailed(rs []model.VideoResult) int {
	n := 0
	for _, r := range rs {
		if r.Status != model.VideoSucceeded {
			n++
		}
	}
	return n
}
