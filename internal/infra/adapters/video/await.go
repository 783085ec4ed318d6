package video

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/domain"
	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
	"video-pipeline/internal/infra/metrics"
)

const DefaultPollInterval = 5 * time.Second

// AwaitCompletion polls jobID every interval until the job is terminal or
// timeout has elapsed. A timeout is a normal outcome: it returns a synthetic
// failed job (model.TimedOutJob) and a nil error, and the remote job keeps
// running. Transport errors while polling are logged and the wait goes on;
// any other poll error or ctx cancellation is returned.
func AwaitCompletion(
	ctx context.Context,
	p adapter.JobPoller,
	cred model.Credential,
	jobID string,
	interval, timeout time.Duration,
	logger *zerolog.Logger,
) (*model.GenerationJob, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout < 0 {
		timeout = 0
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	start := time.Now()
	provider := ""
	lastRaw := ""
	polls := 0
	for {
		job, err := p.Poll(ctx, cred, jobID)
		polls++
		switch {
		case err == nil:
			provider = job.Provider
			lastRaw = job.RawStatus
			if job.IsTerminal() {
				outcome := string(job.Status)
				metrics.ObserveGenerationWait(provider, outcome, time.Since(start).Seconds())
				return job, nil
			}
		case domain.IsRetryable(err):
			logger.Warn().Err(err).Str("job_id", jobID).Int("poll", polls).Msg("poll failed, retrying")
		default:
			return nil, err
		}

		elapsed := time.Since(start)
		if elapsed >= timeout {
			msg := fmt.Sprintf("%s after %s waiting for job %s", model.TimeoutMessagePrefix, timeout, jobID)
			if lastRaw != "" {
				msg += fmt.Sprintf(" (last status %q)", lastRaw)
			}
			logger.Warn().Str("job_id", jobID).Dur("elapsed", elapsed).Int("polls", polls).Msg("generation wait timed out")
			metrics.ObserveGenerationWait(provider, "timeout", elapsed.Seconds())
			return model.TimedOutJob(jobID, provider, msg), nil
		}

		wait := interval
		if left := timeout - elapsed; left < wait {
			wait = left
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
