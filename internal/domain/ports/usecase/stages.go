package usecase

import (
	"context"

	"video-pipeline/internal/domain/model"
)

// SceneArchitect decomposes narrative input into scenes (with their characters).
type SceneArchitect interface {
	Decompose(ctx context.Context, in model.NarrativeInput) ([]model.Scene, error)
}

// ShotComposer breaks scenes into shots.
type ShotComposer interface {
	Compose(ctx context.Context, scenes []model.Scene) ([]model.Shot, error)
}

// PromptBuilder assembles provider prompts for shots.
type PromptBuilder interface {
	Build(ctx context.Context, shots []model.Shot, scenes []model.Scene) ([]model.Prompt, error)
}
