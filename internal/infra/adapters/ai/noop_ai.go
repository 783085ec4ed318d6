package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev runs.
// It answers the scene and shot tasks with small deterministic storyboards
// derived from the request payload.
type NoopAIAdapter struct {
	log *zerolog.Logger
}

func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &NoopAIAdapter{log: logger}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-llm"}, nil
}

func (a *NoopAIAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return adapter.ChatResponse{}, err
	}
	payload := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			payload = req.Messages[i].Content
			break
		}
	}
	a.log.Debug().Str("task", req.Task).Int("payload_bytes", len(payload)).Msg("noop llm call")

	var out any
	switch req.Task {
	case adapter.TaskScenes:
		var in model.NarrativeInput
		_ = json.Unmarshal([]byte(payload), &in)
		out = noopScenes(in)
	case adapter.TaskShots:
		var in struct {
			Scenes []model.Scene `json:"scenes"`
		}
		if err := json.Unmarshal([]byte(payload), &in); err != nil {
			return adapter.ChatResponse{}, fmt.Errorf("noop llm: shots payload: %w", err)
		}
		out = noopShots(in.Scenes)
	default:
		out = map[string]string{"reply": "This is a noop AI response."}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return adapter.ChatResponse{}, err
	}
	return adapter.ChatResponse{Text: string(b), Usage: adapter.Usage{CompletionTokens: len(b) / 4}}, nil
}

func noopScenes(in model.NarrativeInput) map[string]any {
	total := in.TargetSeconds
	if total <= 0 {
		total = 30
	}
	hero := model.Character{
		ID: "C01", Name: "Ava", Age: 28, Gender: "woman",
		PhysicalDescription: "shoulder-length dark hair, slender build",
		Outfit:              "weathered canvas coat",
	}
	setting := in.Setting
	if setting == "" {
		setting = "a quiet lakeside town"
	}
	beats := []struct{ kind, summary string }{
		{"setup", "Ava arrives in " + setting},
		{"conflict", "Ava confronts what she left behind"},
		{"resolution", "Ava finds a moment of peace at dawn"},
	}
	scenes := make([]model.Scene, 0, len(beats))
	for i, b := range beats {
		scenes = append(scenes, model.Scene{
			ID:               fmt.Sprintf("SC%02d", i+1),
			SceneType:        b.kind,
			Act:              i + 1,
			DurationSeconds:  float64(total) / float64(len(beats)),
			NarrativeSummary: b.summary,
			LocationID:       "L01",
			CharacterIDs:     []string{hero.ID},
		})
	}
	return map[string]any{"characters": []model.Character{hero}, "scenes": scenes}
}

func noopShots(scenes []model.Scene) map[string]any {
	shots := make([]model.Shot, 0, len(scenes)*2)
	for _, sc := range scenes {
		shots = append(shots,
			model.Shot{
				ID: sc.ID + "-S01", SceneID: sc.ID, ShotType: "wide", DurationSeconds: 5,
				Purpose: "establish the location", ActionDescription: sc.NarrativeSummary,
			},
			model.Shot{
				ID: sc.ID + "-S02", SceneID: sc.ID, ShotType: "medium close-up", DurationSeconds: 5,
				Purpose: "show emotion", CharacterIDs: sc.CharacterIDs,
				ActionDescription: "the frame slowly widens around the character",
				Camera:            &model.CameraControl{Zoom: 2},
			},
		)
	}
	return map[string]any{"shots": shots}
}
