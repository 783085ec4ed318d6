package adapter

import (
	"context"

	"video-pipeline/internal/domain/model"
)

// JobPoller is the part of a provider needed to wait on a job.
type JobPoller interface {
	// Poll returns the current job state; it never blocks beyond one round trip.
	Poll(ctx context.Context, cred model.Credential, jobID string) (*model.GenerationJob, error)
}

// VideoGenerator is the port for text-to-video providers.
// The credential is supplied by the caller (normally from the key pool).
type VideoGenerator interface {
	JobPoller

	Name() string

	// Submit starts a job. Errors match domain.ErrAuth, domain.ErrValidation,
	// domain.ErrTransport or domain.ErrProvider.
	Submit(ctx context.Context, cred model.Credential, req model.GenerationRequest) (*model.GenerationJob, error)

	// FetchArtifact downloads resultURI to destination and returns the final path.
	// On failure nothing is left at destination and the error matches domain.ErrDownload.
	FetchArtifact(ctx context.Context, cred model.Credential, resultURI, destination string) (string, error)
}
