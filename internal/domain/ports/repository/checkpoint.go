package repository

import (
	"context"

	"video-pipeline/internal/domain/model"
)

// CheckpointStore persists stage outputs keyed by run and stage.
// Stored checkpoints are never mutated: an allowed overwrite archives the
// previous one before the new one becomes current.
type CheckpointStore interface {
	// Write fails with domain.ErrAlreadyExists when the stage exists and overwrite is false.
	Write(ctx context.Context, runID string, stage model.Stage, records any, overwrite bool) error
	// Read decodes the stage records into out; domain.ErrNotFound if never written.
	Read(ctx context.Context, runID string, stage model.Stage, out any) error
	Exists(ctx context.Context, runID string, stage model.Stage) (bool, error)
	List(ctx context.Context, runID string) ([]model.CheckpointInfo, error)
}
